// Package worker owns the recording session state machine and the bounded
// transcription pipeline behind it. At most one session records at a time;
// stopping a session freezes its audio into a task that a single worker
// goroutine transcribes in submission order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"speakd/audio"
	"speakd/config"
	"speakd/encoder"
	"speakd/log"
	"speakd/metrics"
	"speakd/postproc"
	"speakd/transcriber"
)

const (
	framePollInterval  = 200 * time.Millisecond
	captureJoinTimeout = 5 * time.Second
)

var ErrAlreadyRecording = errors.New("already recording")

type state int

const (
	stateIdle state = iota
	stateRecording
	stateStopping
)

// Result is delivered exactly once per submitted task, success or not.
type Result struct {
	Session     uint64
	Text        string
	RawText     string
	AudioS      float64
	InferenceS  float64
	Confidence  float64
	Corrections int
	Err         error
}

type ResultFunc func(Result)

type Stats struct {
	Submitted      uint64
	Completed      uint64
	Dropped        uint64
	Pending        uint64
	IsRecording    bool
	IsTranscribing bool
}

type Worker struct {
	cfg      *config.Config
	audioCtx audio.Context
	engine   transcriber.Engine
	post     *postproc.Processor
	met      *metrics.Metrics
	onResult ResultFunc

	pipe *pipeline
	buf  buffer

	mu          sync.Mutex
	state       state
	session     uint64
	source      audio.Source
	stopCapture chan struct{}
	captureDone chan struct{}

	cleanupOnce sync.Once
}

func New(cfg *config.Config, audioCtx audio.Context, engine transcriber.Engine, met *metrics.Metrics, onResult ResultFunc) *Worker {
	w := &Worker{
		cfg:      cfg,
		audioCtx: audioCtx,
		engine:   engine,
		post:     postproc.New(cfg.Postprocess),
		met:      met,
		onResult: onResult,
	}
	w.pipe = newPipeline(w.processTask, func() {
		met.TasksPending.Set(float64(w.pipe.pending()))
	})
	return w
}

// Start opens the capture source and begins accumulating audio. It fails
// without side effects when a session is already active or the device
// cannot be opened.
func (w *Worker) Start() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateIdle {
		return 0, ErrAlreadyRecording
	}

	device, err := audio.FindDevice(w.audioCtx, w.cfg.Audio.Device)
	if err != nil {
		return 0, fmt.Errorf("resolve capture device: %w", err)
	}
	source, err := w.audioCtx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(w.cfg.Audio.SampleRate),
		Channels:   1,
	})
	if err != nil {
		return 0, fmt.Errorf("open capture device: %w", err)
	}
	if err := source.Start(); err != nil {
		source.Close()
		return 0, fmt.Errorf("start capture: %w", err)
	}

	// A capture loop that outlived its join timeout may still be appending;
	// discard anything it left behind so sessions never bleed together.
	if leftover := w.buf.drain(); len(leftover) > 0 {
		log.Warnf("discarded %d stale bytes from a previous session", len(leftover))
	}

	w.session++
	w.state = stateRecording
	w.source = source
	w.stopCapture = make(chan struct{})
	w.captureDone = make(chan struct{})

	go w.captureLoop(w.session, source, w.stopCapture, w.captureDone)

	w.met.SessionsStarted.Inc()
	w.met.Recording.Set(1)
	log.SessionStart(w.session, source.DeviceName())
	return w.session, nil
}

// captureLoop moves frames from the source into the session buffer until
// told to stop. When the size limit trips, the loop stops its own session;
// stop knows not to wait for a goroutine that is calling it.
func (w *Worker) captureLoop(session uint64, source audio.Source, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	limit := w.cfg.Audio.MaxSessionBytes
	timer := time.NewTimer(framePollInterval)
	defer timer.Stop()

	for {
		timer.Reset(framePollInterval)
		select {
		case frame, ok := <-source.Frames():
			if !ok {
				return
			}
			total := w.buf.append(frame)
			if limit > 0 && total >= limit {
				log.Warnf("session %d hit size limit (%d bytes), stopping", session, total)
				w.stop(true)
				return
			}
		case <-stop:
			return
		case <-timer.C:
			// No frames this interval; poll again so stop stays responsive
			// even when the device goes quiet.
		}
	}
}

// Stop ends the active session and submits its audio for transcription.
// Stopping when idle is a no-op.
func (w *Worker) Stop() error {
	return w.stop(false)
}

func (w *Worker) stop(fromCaptureLoop bool) error {
	w.mu.Lock()
	if w.state != stateRecording {
		w.mu.Unlock()
		return nil
	}
	w.state = stateStopping
	session := w.session
	source := w.source
	stopCh := w.stopCapture
	done := w.captureDone
	w.mu.Unlock()

	close(stopCh)
	if !fromCaptureLoop {
		select {
		case <-done:
		case <-time.After(captureJoinTimeout):
			log.Warnf("session %d: capture loop did not exit in time", session)
		}
	}

	source.Stop()
	w.drainRemaining(source)
	source.Close()

	pcm := w.buf.drain()

	reason := "user"
	if fromCaptureLoop {
		reason = "size_limit"
	}
	log.SessionStop(session, reason, uint64(len(pcm)))
	w.met.SessionsStopped.Inc()
	w.met.Recording.Set(0)
	w.met.SessionBytes.Observe(float64(len(pcm)))

	var submitErr error
	if len(pcm) > 0 {
		w.writeArtifact(pcm)
		err := w.pipe.submit(&Task{
			Session:    session,
			PCM:        pcm,
			SampleRate: w.cfg.Audio.SampleRate,
			StoppedAt:  time.Now(),
		})
		switch {
		case err == nil:
			w.met.TasksSubmitted.Inc()
			w.met.TasksPending.Set(float64(w.pipe.pending()))
		case errors.Is(err, ErrQueueFull):
			w.met.TasksDropped.Inc()
			log.Warnf("session %d dropped: %v", session, err)
			submitErr = err
		default:
			submitErr = err
		}
	} else {
		log.Warnf("session %d produced no audio, nothing to transcribe", session)
	}

	w.mu.Lock()
	w.state = stateIdle
	w.source = nil
	w.mu.Unlock()
	return submitErr
}

// drainRemaining empties frames the backend flushed after the capture
// loop exited, so the tail of the utterance is not lost.
func (w *Worker) drainRemaining(source audio.Source) {
	for {
		select {
		case frame, ok := <-source.Frames():
			if !ok {
				return
			}
			w.buf.append(frame)
		default:
			return
		}
	}
}

// writeArtifact keeps the last session's audio on disk next to the logs
// for replay and debugging. Failures are logged, never fatal.
func (w *Worker) writeArtifact(pcm []byte) {
	format := w.cfg.Audio.ArtifactFormat
	data, err := encoder.Encode(format, w.cfg.Audio.SampleRate, pcm)
	if err != nil {
		log.Warnf("artifact encode failed: %v", err)
		return
	}
	path := filepath.Join(log.Dir(), "recent."+format)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warnf("artifact write failed: %v", err)
	}
}

func (w *Worker) processTask(task *Task) {
	delivered := false
	deliver := func(r Result) {
		delivered = true
		if w.onResult != nil {
			w.onResult(r)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("session %d: transcription panicked: %v", task.Session, r)
			if !delivered {
				deliver(Result{Session: task.Session, Err: fmt.Errorf("internal error: %v", r)})
			}
		}
	}()

	audioS := float64(len(task.PCM)/2) / float64(task.SampleRate)
	opts := transcriber.Options{
		UseVAD:     w.cfg.ASR.UseVAD,
		UsePunc:    w.cfg.ASR.UsePunc,
		Language:   w.cfg.ASR.Language,
		Hotword:    w.cfg.ASR.Hotword,
		BatchSizeS: w.cfg.ASR.BatchSizeS,
	}

	start := time.Now()
	res, err := w.engine.Transcribe(context.Background(), task.PCM, task.SampleRate, opts)
	inference := time.Since(start).Seconds()

	if err != nil {
		w.met.TranscriptionFailures.Inc()
		log.Errorf("session %d: transcription failed: %v", task.Session, err)
		deliver(Result{Session: task.Session, AudioS: audioS, InferenceS: inference, Err: err})
		return
	}

	text, corrections := w.post.Apply(res.Text)
	// Raw text gets the same rules, but only text matches count as
	// corrections.
	rawText, _ := w.post.Apply(res.RawText)

	w.met.TasksCompleted.Inc()
	w.met.TranscriptionDuration.Observe(inference)
	w.met.AudioDuration.Observe(audioS)
	w.met.Corrections.Add(float64(corrections))
	log.TaskMetrics(task.Session, audioS, inference, res.Confidence, corrections)
	if text != "" {
		log.TranscriptionText(text)
	}

	deliver(Result{
		Session:     task.Session,
		Text:        text,
		RawText:     rawText,
		AudioS:      audioS,
		InferenceS:  inference,
		Confidence:  res.Confidence,
		Corrections: corrections,
	})
}

// Stats reports pipeline counters. Pending counts the in-flight task as
// well as queued ones, so Pending > 0 whenever IsTranscribing is true.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	recording := w.state == stateRecording
	w.mu.Unlock()
	return Stats{
		Submitted:      w.pipe.submitted.Load(),
		Completed:      w.pipe.completed.Load(),
		Dropped:        w.pipe.dropped.Load(),
		Pending:        w.pipe.pending(),
		IsRecording:    recording,
		IsTranscribing: w.pipe.transcribing.Load(),
	}
}

// Cleanup stops any active session, drains the pipeline and joins the
// worker goroutine. Safe to call more than once.
func (w *Worker) Cleanup() {
	w.cleanupOnce.Do(func() {
		w.stop(false)
		w.pipe.close()
		log.PipelineEnd(w.pipe.submitted.Load(), w.pipe.completed.Load(), w.pipe.dropped.Load())
	})
}
