// Package doctor runs end-to-end diagnostics: log directory, microphone
// capture, transcription server, post-processing rules. Each check prints
// PASS or FAIL so a bug report can just paste the output.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"speakd/audio"
	"speakd/config"
	"speakd/log"
	"speakd/postproc"
	"speakd/transcriber"
)

// Run executes the diagnostic checks and returns an exit code
// (0=all pass, 1=any fail).
func Run(cfg *config.Config) int {
	restoreTerminal()
	watchInterrupt()

	fmt.Println("speakd doctor - system diagnostics")
	fmt.Println("===================================")

	allPass := true

	if !checkLogDir() {
		allPass = false
	}

	pcm := checkMicrophone(cfg)
	if pcm == nil {
		allPass = false
	}

	if !checkTranscription(cfg, pcm) {
		allPass = false
	}
	if !checkPostprocess(cfg) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkLogDir() bool {
	fmt.Println()
	fmt.Println("[1/4] Log directory")

	dir := log.Dir()
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		fmt.Printf("  FAIL: %s not writable: %v\n", dir, err)
		return false
	}
	os.Remove(probe)
	fmt.Printf("  PASS: %s is writable\n", dir)
	return true
}

// checkMicrophone records one second of audio and returns the PCM, or nil
// on failure. The captured audio feeds the transcription check.
func checkMicrophone(cfg *config.Config) []byte {
	fmt.Println()
	fmt.Println("[2/4] Microphone capture")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio backend: %v\n", err)
		return nil
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return nil
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("  found device: %s\n", d.Name)
	}

	device, err := audio.FindDevice(ctx, cfg.Audio.Device)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return nil
	}

	source, err := ctx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
		Channels:   1,
	})
	if err != nil {
		fmt.Printf("  FAIL: cannot open capture: %v\n", err)
		return nil
	}
	if err := source.Start(); err != nil {
		fmt.Printf("  FAIL: cannot start capture: %v\n", err)
		return nil
	}

	fmt.Println("  recording 1 second...")
	var pcm []byte
	deadline := time.After(1 * time.Second)
collect:
	for {
		select {
		case frame := <-source.Frames():
			pcm = append(pcm, frame...)
		case <-deadline:
			break collect
		}
	}
	source.Stop()
	source.Close()

	if len(pcm) == 0 {
		fmt.Println("  FAIL: no audio captured (device muted?)")
		return nil
	}
	fmt.Printf("  PASS: captured %d bytes on %q\n", len(pcm), source.DeviceName())
	return pcm
}

func checkTranscription(cfg *config.Config, pcm []byte) bool {
	fmt.Println()
	fmt.Println("[3/4] Transcription server")

	engine, err := transcriber.New(cfg.ASR.Endpoint)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Initialize(ctx); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  server reachable at %s\n", cfg.ASR.Endpoint)

	if pcm == nil {
		fmt.Println("  SKIP: no captured audio to transcribe")
		return true
	}

	res, err := engine.Transcribe(ctx, pcm, cfg.Audio.SampleRate, transcriber.Options{
		UseVAD:     cfg.ASR.UseVAD,
		UsePunc:    cfg.ASR.UsePunc,
		Language:   cfg.ASR.Language,
		BatchSizeS: cfg.ASR.BatchSizeS,
	})
	if err != nil {
		fmt.Printf("  FAIL: transcription: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: transcribed %.1fs of audio: %q\n", res.Duration, res.Text)
	return true
}

func checkPostprocess(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[4/4] Post-processing rules")

	p := postproc.New(cfg.Postprocess)
	fmt.Printf("  PASS: %d replacement rules active\n", p.RuleCount())
	return true
}
