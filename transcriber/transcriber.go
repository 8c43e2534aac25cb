// Package transcriber turns finished audio blocks into text. Engines are
// opaque: the worker hands over PCM and options and gets back a Result or
// an error, nothing else crosses the boundary.
package transcriber

import (
	"context"
	"fmt"
)

// Options are forwarded to the engine as-is. Unknown or inapplicable
// fields are the engine's problem to ignore.
type Options struct {
	UseVAD     bool
	UsePunc    bool
	Language   string
	Hotword    string
	BatchSizeS float64
}

type Result struct {
	// Text is the post-processed output; RawText is what the engine
	// emitted before any replacement rules ran.
	Text       string
	RawText    string
	Duration   float64
	Confidence float64
}

type Engine interface {
	Name() string

	// Initialize loads models or warms connections. Called once before
	// the first Transcribe; a failed Initialize leaves the engine unusable.
	Initialize(ctx context.Context) error

	// Transcribe decodes one complete utterance of 16-bit LE mono PCM.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, opts Options) (Result, error)

	Close()
}

func New(endpoint string) (Engine, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("no transcription endpoint configured")
	}
	return NewFunASR(endpoint), nil
}
