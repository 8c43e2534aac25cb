package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"speakd/cues"
	"speakd/log"
	"speakd/worker"
)

// command is one line of host input. Anything beyond cmd is ignored so
// the host can attach correlation fields without breaking us.
type command struct {
	Cmd string `json:"cmd"`
}

// bridge drives the worker from a line-delimited JSON command stream and
// reports back on the event stream. One bridge per process.
type bridge struct {
	em *emitter
	w  *worker.Worker
}

func (b *bridge) stats() map[string]any {
	s := b.w.Stats()
	return map[string]any{
		"submitted":       s.Submitted,
		"completed":       s.Completed,
		"pending":         s.Pending,
		"is_recording":    s.IsRecording,
		"is_transcribing": s.IsTranscribing,
	}
}

// onResult is installed as the worker's result callback; it runs on the
// worker goroutine.
func (b *bridge) onResult(r worker.Result) {
	if r.Err != nil {
		b.em.emit(evTranscriptionError, map[string]any{
			"session_id": r.Session,
			"error":      r.Err.Error(),
			"stats":      b.stats(),
		})
		return
	}
	b.em.emit(evTranscriptionOK, map[string]any{
		"session_id":        r.Session,
		"text":              r.Text,
		"raw_text":          r.RawText,
		"duration":          r.AudioS,
		"inference_latency": r.InferenceS,
		"confidence":        r.Confidence,
		"corrections":       r.Corrections,
		"stats":             b.stats(),
	})
}

// run consumes commands until EOF or an explicit shutdown command. Both
// mean the host is done with us; the caller tears the pipeline down.
func (b *bridge) run(in io.Reader) {
	b.em.emit(evBridgeReady, map[string]any{"version": version, "stats": b.stats()})

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if b.dispatch(line) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("bridge: stdin read failed: %v", err)
		b.em.emit(evBridgeError, map[string]any{"message": err.Error(), "stage": "read"})
		return
	}
	log.Info("bridge: stdin closed, shutting down")
}

// dispatch handles one command line and reports whether the bridge
// should exit.
func (b *bridge) dispatch(line string) bool {
	var cmd command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		log.Warnf("bridge: unparseable command: %v", err)
		b.em.emit(evInvalidCommand, map[string]any{"message": "invalid_json", "raw": line})
		return false
	}
	if strings.TrimSpace(cmd.Cmd) == "" {
		b.em.emit(evInvalidCommand, map[string]any{"message": "missing_cmd", "raw": line})
		return false
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Cmd)) {
	case "start":
		id, err := b.w.Start()
		switch {
		case errors.Is(err, worker.ErrAlreadyRecording):
			b.em.emit(evRecordingState, map[string]any{
				"is_recording": true,
				"skipped":      "already_recording",
				"stats":        b.stats(),
			})
		case err != nil:
			b.em.emit(evRecordingError, map[string]any{"message": err.Error()})
		default:
			cues.PlayStart()
			b.em.emit(evRecordingState, map[string]any{
				"is_recording": true,
				"session_id":   id,
				"stats":        b.stats(),
			})
		}

	case "stop":
		if err := b.w.Stop(); err != nil {
			b.em.emit(evRecordingError, map[string]any{"message": err.Error()})
		}
		cues.PlayEnd()
		b.em.emit(evRecordingState, map[string]any{"is_recording": false, "stats": b.stats()})

	case "stats":
		b.em.emit(evStats, map[string]any{"stats": b.stats()})

	case "shutdown":
		b.em.emit(evShutdownRequested, map[string]any{})
		return true

	default:
		log.Warnf("bridge: unknown command %q", cmd.Cmd)
		b.em.emit(evInvalidCommand, map[string]any{"message": "unknown_cmd", "cmd": cmd.Cmd})
	}
	return false
}
