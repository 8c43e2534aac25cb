//go:build integration

// End-to-end tests against the built binary: JSON commands in on stdin,
// JSON events out on stdout, fake audio and transcription backends.
// Run with: make test-integration
package test_test

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("SPEAKD_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "SPEAKD_TEST_BIN not set; run: make test-integration")
		os.Exit(1)
	}

	wavPath := filepath.Join("data", "tone.wav")
	if err := generateToneWAV(wavPath, 16000, 1.0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate tone.wav: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(wavPath)

	os.Exit(m.Run())
}

func generateToneWAV(path string, sampleRate int, durationS float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	// Simple square-ish tone so the capture path sees non-zero samples.
	for i := 0; i < numSamples; i++ {
		s := int16(2000)
		if i%160 < 80 {
			s = -2000
		}
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(s))
	}

	return os.WriteFile(path, buf, 0644)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

// runSpeakd runs the binary to completion and returns the parsed event
// stream plus the log directory.
func runSpeakd(t *testing.T, stdin string, args ...string) ([]map[string]any, string) {
	t.Helper()
	logDir := t.TempDir()
	cmdArgs := append([]string{"-logpath", logDir}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("speakd exited with error: %v\nstdout: %s", err, out)
	}

	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("stdout line is not JSON: %q", line)
		}
		events = append(events, ev)
	}
	return events, logDir
}

func findEvent(events []map[string]any, name string) map[string]any {
	for _, ev := range events {
		if ev["event"] == name {
			return ev
		}
	}
	return nil
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestRecordAndTranscribe(t *testing.T) {
	events, logDir := runSpeakd(t,
		cmds(`{"cmd": "start"}`, `{"cmd": "stop"}`, `{"cmd": "shutdown"}`),
		"-test", filepath.Join("data", "tone.wav"))

	if findEvent(events, "bridge_ready") == nil {
		t.Error("no bridge_ready event")
	}
	if ev := findEvent(events, "recording_state"); ev == nil || ev["is_recording"] != true {
		t.Errorf("no recording state event: %v", ev)
	}
	result := findEvent(events, "transcription_result")
	if result == nil {
		t.Fatal("no transcription_result event")
	}
	if result["text"] == "" {
		t.Error("transcription_result has empty text")
	}

	if text := readLog(t, logDir, "transcribe_log.txt"); strings.TrimSpace(text) == "" {
		t.Error("transcribe_log.txt is empty")
	}
	if _, err := os.Stat(filepath.Join(logDir, "recent.wav")); err != nil {
		t.Errorf("no recent.wav artifact: %v", err)
	}
}

func TestStatsCommand(t *testing.T) {
	events, _ := runSpeakd(t,
		cmds(`{"cmd": "start"}`, `{"cmd": "stop"}`, `{"cmd": "stats"}`, `{"cmd": "shutdown"}`),
		"-test", filepath.Join("data", "tone.wav"))

	statsEv := findEvent(events, "stats")
	if statsEv == nil {
		t.Fatal("no stats event")
	}
	stats, ok := statsEv["stats"].(map[string]any)
	if !ok {
		t.Fatal("stats event has no stats object")
	}
	if stats["submitted"].(float64) != 1 {
		t.Errorf("submitted = %v, want 1", stats["submitted"])
	}
}

func TestInvalidCommands(t *testing.T) {
	events, _ := runSpeakd(t,
		cmds(`garbage`, `{"nope": true}`, `{"cmd": "dance"}`, `{"cmd": "shutdown"}`),
		"-test")

	var reasons []string
	for _, ev := range events {
		if ev["event"] == "invalid_command" {
			reasons = append(reasons, ev["message"].(string))
		}
	}
	want := "invalid_json,missing_cmd,unknown_cmd"
	if strings.Join(reasons, ",") != want {
		t.Errorf("invalid_command reasons = %v, want %s", reasons, want)
	}
}

func TestStopWithoutStart(t *testing.T) {
	events, _ := runSpeakd(t,
		cmds(`{"cmd": "stop"}`, `{"cmd": "shutdown"}`),
		"-test")

	if ev := findEvent(events, "recording_state"); ev == nil || ev["is_recording"] != false {
		t.Errorf("stop without start should still report idle state: %v", ev)
	}
	if ev := findEvent(events, "transcription_result"); ev != nil {
		t.Errorf("unexpected transcription_result: %v", ev)
	}
}

func TestDiagnosticsLog(t *testing.T) {
	_, logDir := runSpeakd(t,
		cmds(`{"cmd": "start"}`, `{"cmd": "stop"}`, `{"cmd": "shutdown"}`),
		"-test", filepath.Join("data", "tone.wav"))

	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "session_start") {
		t.Error("expected session_start in diagnostics")
	}
	if !strings.Contains(diag, "session_stop") {
		t.Error("expected session_stop in diagnostics")
	}
}
