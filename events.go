package main

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"speakd/log"
)

// Event names on the stdout stream. The host process switches on these,
// so renaming one is a protocol break.
const (
	evBridgeReady        = "bridge_ready"
	evRecordingState     = "recording_state"
	evRecordingError     = "recording_error"
	evTranscriptionOK    = "transcription_result"
	evTranscriptionError = "transcription_error"
	evStats              = "stats"
	evInvalidCommand     = "invalid_command"
	evShutdownRequested  = "shutdown_requested"
	evBridgeShutdown     = "bridge_shutdown"
	evBridgeError        = "bridge_error"
)

// emitter serializes events onto stdout, one JSON object per line.
// Stdout belongs to the host process exclusively; everything human-facing
// goes through the log package to stderr.
type emitter struct {
	mu  sync.Mutex
	out io.Writer
}

func newEmitter(out io.Writer) *emitter {
	return &emitter{out: out}
}

func (e *emitter) emit(event string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["event"] = event
	payload["timestamp"] = float64(time.Now().UnixNano()) / 1e9

	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("event %s not serializable: %v", event, err)
		return
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.out.Write(data); err != nil {
		log.Errorf("event write failed: %v", err)
	}
}
