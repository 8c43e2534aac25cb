package transcriber

import (
	"context"
	"sync/atomic"
	"time"
)

// Fake returns canned results without touching the network. Tests and the
// -test flag run the whole pipeline against it.
type Fake struct {
	Text       string
	Confidence float64
	Err        error
	InitErr    error

	// Delay stretches each Transcribe call, for tests that need the
	// worker to be observably busy.
	Delay time.Duration

	calls atomic.Uint64
}

func NewFake(text string, err error) *Fake {
	return &Fake{Text: text, Confidence: 0.9, Err: err}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Initialize(context.Context) error { return f.InitErr }

func (f *Fake) Close() {}

func (f *Fake) Calls() uint64 { return f.calls.Load() }

func (f *Fake) Transcribe(ctx context.Context, pcm []byte, sampleRate int, _ Options) (Result, error) {
	f.calls.Add(1)
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.Err != nil {
		return Result{}, f.Err
	}
	duration := 0.0
	if sampleRate > 0 {
		duration = float64(len(pcm)/2) / float64(sampleRate)
	}
	return Result{
		Text:       f.Text,
		RawText:    f.Text,
		Duration:   duration,
		Confidence: f.Confidence,
	}, nil
}
