package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"speakd/audio"
	"speakd/config"
	"speakd/log"
	"speakd/metrics"
	"speakd/transcriber"
	"speakd/worker"
)

var errFailed = errors.New("server melted")

type fakeAudioContext struct {
	src *audio.FakeSource
}

func (c *fakeAudioContext) Devices() ([]audio.DeviceInfo, error) { return nil, nil }
func (c *fakeAudioContext) Close()                               {}

func (c *fakeAudioContext) NewCapture(*audio.DeviceInfo, audio.CaptureConfig) (audio.Source, error) {
	return c.src, nil
}

func newTestBridge(t *testing.T, engine transcriber.Engine) (*bridge, *worker.Worker, *bytes.Buffer) {
	t.Helper()
	log.SetDir(t.TempDir())
	cfg := &config.Config{
		Audio: config.AudioConfig{
			SampleRate:      16000,
			BlockMs:         20,
			MaxSessionBytes: config.DefaultMaxSessionBytes,
			ArtifactFormat:  "wav",
		},
	}
	var out bytes.Buffer
	b := &bridge{em: newEmitter(&out)}
	src := audio.NewFakeSource(make([]byte, 640))
	w := worker.New(cfg, &fakeAudioContext{src: src}, engine, metrics.New(), b.onResult)
	b.w = w
	t.Cleanup(w.Cleanup)
	return b, w, &out
}

// parseEvents decodes every line the bridge wrote. Call only after all
// writers are done.
func parseEvents(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", line, err)
		}
		if ev["event"] == nil {
			t.Fatalf("line %q has no event field", line)
		}
		if ts, ok := ev["timestamp"].(float64); !ok || ts <= 0 {
			t.Fatalf("line %q has no usable timestamp", line)
		}
		events = append(events, ev)
	}
	return events
}

func eventNames(events []map[string]any) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev["event"].(string)
	}
	return names
}

func findEvent(events []map[string]any, name string) map[string]any {
	for _, ev := range events {
		if ev["event"] == name {
			return ev
		}
	}
	return nil
}

func TestBridgeProtocol(t *testing.T) {
	b, w, out := newTestBridge(t, transcriber.NewFake("你好", nil))

	input := strings.Join([]string{
		`not json at all`,
		`{"other": "field"}`,
		`{"cmd": "bogus"}`,
		`{"cmd": "start"}`,
		`{"cmd": "STOP"}`, // commands are case-insensitive
		`{"cmd": "stats"}`,
		`{"cmd": "shutdown"}`,
	}, "\n")

	b.run(strings.NewReader(input))
	w.Cleanup() // join the worker so the result event is flushed

	events := parseEvents(t, out)
	names := eventNames(events)
	if names[0] != evBridgeReady {
		t.Errorf("first event = %s, want %s", names[0], evBridgeReady)
	}
	if events[0]["stats"] == nil {
		t.Error("bridge_ready should embed stats")
	}

	var invalidReasons []string
	for _, ev := range events {
		if ev["event"] == evInvalidCommand {
			invalidReasons = append(invalidReasons, ev["message"].(string))
		}
	}
	want := []string{"invalid_json", "missing_cmd", "unknown_cmd"}
	if strings.Join(invalidReasons, ",") != strings.Join(want, ",") {
		t.Errorf("invalid_command messages = %v, want %v", invalidReasons, want)
	}

	recording := findEvent(events, evRecordingState)
	if recording == nil || recording["is_recording"] != true {
		t.Fatalf("no recording state event for start: %v", recording)
	}
	if recording["session_id"].(float64) != 1 {
		t.Errorf("session_id = %v, want 1", recording["session_id"])
	}

	statsEv := findEvent(events, evStats)
	if statsEv == nil {
		t.Fatal("no stats event")
	}
	stats, ok := statsEv["stats"].(map[string]any)
	if !ok {
		t.Fatal("stats event has no stats object")
	}
	for _, key := range []string{"submitted", "completed", "pending", "is_recording", "is_transcribing"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("stats object missing %q", key)
		}
	}

	if findEvent(events, evShutdownRequested) == nil {
		t.Error("no shutdown_requested event")
	}

	result := findEvent(events, evTranscriptionOK)
	if result == nil {
		t.Fatal("no transcription_result event")
	}
	if result["text"] != "你好" {
		t.Errorf("result text = %v, want 你好", result["text"])
	}
	if result["session_id"].(float64) != 1 {
		t.Errorf("result session_id = %v, want 1", result["session_id"])
	}
	if result["stats"] == nil {
		t.Error("transcription_result should embed stats")
	}
}

func TestBridgeStartWhileRecording(t *testing.T) {
	b, w, out := newTestBridge(t, transcriber.NewFake("x", nil))

	b.run(strings.NewReader(`{"cmd": "start"}` + "\n" + `{"cmd": "start"}` + "\n" + `{"cmd": "shutdown"}`))
	w.Cleanup()

	events := parseEvents(t, out)
	var skipped map[string]any
	for _, ev := range events {
		if ev["event"] == evRecordingState && ev["skipped"] != nil {
			skipped = ev
		}
	}
	if skipped == nil {
		t.Fatal("second start should emit recording_state with skipped")
	}
	if skipped["skipped"] != "already_recording" {
		t.Errorf("skipped = %v, want already_recording", skipped["skipped"])
	}
	if skipped["is_recording"] != true {
		t.Errorf("is_recording = %v, want true", skipped["is_recording"])
	}
}

func TestBridgeEOFShutsDown(t *testing.T) {
	b, _, out := newTestBridge(t, transcriber.NewFake("x", nil))

	b.run(strings.NewReader(""))

	events := parseEvents(t, out)
	if len(events) != 1 || events[0]["event"] != evBridgeReady {
		t.Errorf("events on EOF = %v, want just bridge_ready", eventNames(events))
	}
}

func TestBridgeTranscriptionError(t *testing.T) {
	b, w, out := newTestBridge(t, transcriber.NewFake("", errFailed))

	b.run(strings.NewReader(`{"cmd": "start"}` + "\n" + `{"cmd": "stop"}` + "\n" + `{"cmd": "shutdown"}`))
	w.Cleanup()

	events := parseEvents(t, out)
	errEv := findEvent(events, evTranscriptionError)
	if errEv == nil {
		t.Fatal("no transcription_error event")
	}
	if !strings.Contains(errEv["error"].(string), "server melted") {
		t.Errorf("error = %v", errEv["error"])
	}
	if errEv["session_id"].(float64) != 1 {
		t.Errorf("session_id = %v, want 1", errEv["session_id"])
	}
}

func TestBridgeStopWhenIdle(t *testing.T) {
	b, w, out := newTestBridge(t, transcriber.NewFake("x", nil))

	b.run(strings.NewReader(`{"cmd": "stop"}` + "\n" + `{"cmd": "shutdown"}`))
	w.Cleanup()

	events := parseEvents(t, out)
	state := findEvent(events, evRecordingState)
	if state == nil || state["is_recording"] != false {
		t.Errorf("stop when idle should report is_recording=false: %v", state)
	}
	if findEvent(events, evTranscriptionOK) != nil {
		t.Error("idle stop must not produce a transcription result")
	}
}
