package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"speakd/log"
)

const (
	// queueDepth bounds memory when transcription falls behind capture.
	// A full queue rejects new work instead of blocking the caller.
	queueDepth = 10

	drainGrace        = 10 * time.Second
	drainPollInterval = 100 * time.Millisecond
	sentinelTimeout   = 1 * time.Second
	workerJoinTimeout = 5 * time.Second
)

var ErrQueueFull = errors.New("transcription queue full")

// Task is one finished recording session handed to the worker: a single
// contiguous PCM block plus everything needed to transcribe it.
type Task struct {
	Session    uint64
	PCM        []byte
	SampleRate int
	StoppedAt  time.Time
}

// pipeline is a bounded FIFO with a single worker goroutine. Tasks are
// processed strictly in submission order; a nil task is the shutdown
// sentinel and is never counted.
type pipeline struct {
	queue chan *Task
	done  chan struct{}

	submitted    atomic.Uint64
	completed    atomic.Uint64
	dropped      atomic.Uint64
	transcribing atomic.Bool

	closeOnce sync.Once
	process   func(*Task)

	// onComplete fires after completed is incremented, so observers read
	// a settled pending count. May be nil.
	onComplete func()
}

func newPipeline(process func(*Task), onComplete func()) *pipeline {
	p := &pipeline{
		queue:      make(chan *Task, queueDepth),
		done:       make(chan struct{}),
		process:    process,
		onComplete: onComplete,
	}
	go p.loop()
	return p
}

func (p *pipeline) loop() {
	defer close(p.done)
	for task := range p.queue {
		if task == nil {
			return
		}
		p.transcribing.Store(true)
		p.runTask(task)
		p.transcribing.Store(false)
		p.completed.Add(1)
		if p.onComplete != nil {
			p.onComplete()
		}
	}
}

// runTask isolates one task so a panic marks the task failed instead of
// killing the worker; the remaining queue keeps draining.
func (p *pipeline) runTask(task *Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker: task for session %d panicked: %v", task.Session, r)
		}
	}()
	p.process(task)
}

// submit enqueues without blocking. When the queue is full the task is
// dropped and counted; the caller decides how loudly to complain.
func (p *pipeline) submit(task *Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

func (p *pipeline) pending() uint64 {
	return p.submitted.Load() - p.completed.Load()
}

// close shuts the pipeline down in three phases: wait for in-flight work
// to drain, send the nil sentinel, then join the worker. Each phase has
// its own deadline so a wedged engine cannot hang process exit.
func (p *pipeline) close() {
	p.closeOnce.Do(func() {
		deadline := time.Now().Add(drainGrace)
		for p.pending() > 0 && time.Now().Before(deadline) {
			time.Sleep(drainPollInterval)
		}
		if n := p.pending(); n > 0 {
			log.Warnf("worker: %d tasks still pending after drain grace", n)
		}

		select {
		case p.queue <- nil:
		case <-time.After(sentinelTimeout):
			log.Warn("worker: queue blocked, abandoning sentinel")
		}

		select {
		case <-p.done:
		case <-time.After(workerJoinTimeout):
			log.Warn("worker: worker goroutine did not exit in time")
		}
	})
}
