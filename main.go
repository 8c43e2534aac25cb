// speakd is a headless recording and transcription bridge. A host process
// drives it with JSON commands on stdin and reads JSON events from stdout;
// audio capture, the transcription pipeline and text post-processing all
// live here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"speakd/audio"
	"speakd/config"
	"speakd/cues"
	"speakd/doctor"
	"speakd/log"
	"speakd/metrics"
	"speakd/shutdown"
	"speakd/transcriber"
	"speakd/worker"
)

var version = "dev"

func main() {
	run()
}

func run() {
	configFlag := flag.String("config", "", "Path to JSON config file")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	metricsFlag := flag.String("metrics", "", "Enable Prometheus metrics server (e.g., :9090)")
	setupFlag := flag.Bool("setup", false, "Select microphone device and print a config snippet")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	testFlag := flag.Bool("test", false, "Test mode: fake audio from WAV argument, fake transcription engine")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("speakd %s\n", version)
		os.Exit(0)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Errorf("config: %v", err)
		os.Exit(1)
	}
	if cfg.Logging.Level != "" {
		log.SetLevel(cfg.Logging.Level)
	}
	if cfg.Audio.Cues {
		cues.Enable()
	}

	if *setupFlag {
		os.Exit(runSetup())
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg))
	}

	audioCtx, engine, err := buildBackends(cfg, *testFlag, flag.Args())
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	defer audioCtx.Close()
	defer engine.Close()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = engine.Initialize(initCtx)
	cancel()
	if err != nil {
		log.Errorf("engine %s failed to initialize: %v", engine.Name(), err)
		os.Exit(1)
	}
	log.Infof("speakd %s ready: engine=%s sample_rate=%d", version, engine.Name(), cfg.Audio.SampleRate)

	met := metrics.New()
	metricsAddr := cfg.Metrics.Addr
	if *metricsFlag != "" {
		metricsAddr = *metricsFlag
	}
	if metricsAddr != "" {
		go func() {
			if err := met.Serve(metricsAddr); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	em := newEmitter(os.Stdout)
	b := &bridge{em: em}
	w := worker.New(cfg, audioCtx, engine, met, b.onResult)
	b.w = w

	// SIGINT/SIGTERM shut down the same path as a shutdown command: stop
	// recording, drain the pipeline, then exit.
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		sig := <-sigChan
		log.Infof("received %v, shutting down", sig)
		em.emit(evShutdownRequested, map[string]any{"signal": sig.String()})
		w.Cleanup()
		em.emit(evBridgeShutdown, map[string]any{})
		log.Close()
		os.Exit(0)
	}()

	b.run(os.Stdin)

	w.Cleanup()
	em.emit(evBridgeShutdown, map[string]any{})
}

// buildBackends picks real capture and transcription backends, or fakes
// in test mode so the whole bridge runs without hardware or a server.
func buildBackends(cfg *config.Config, testMode bool, args []string) (audio.Context, transcriber.Engine, error) {
	if testMode {
		wavFile := ""
		if len(args) > 0 {
			wavFile = args[0]
		}
		var audioCtx audio.Context
		if wavFile != "" {
			fake, err := audio.NewFakeContext(wavFile)
			if err != nil {
				return nil, nil, fmt.Errorf("test mode: %w", err)
			}
			audioCtx = fake
		} else {
			audioCtx = &audio.FakeContext{}
		}
		return audioCtx, transcriber.NewFake("test transcription", nil), nil
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		return nil, nil, fmt.Errorf("audio backend: %w", err)
	}
	engine, err := transcriber.New(cfg.ASR.Endpoint)
	if err != nil {
		audioCtx.Close()
		return nil, nil, err
	}
	return audioCtx, engine, nil
}
