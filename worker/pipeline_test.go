package worker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPipelineProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []uint64
	p := newPipeline(func(task *Task) {
		mu.Lock()
		order = append(order, task.Session)
		mu.Unlock()
	}, nil)

	for i := uint64(1); i <= 5; i++ {
		if err := p.submit(&Task{Session: i}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	p.close()

	if p.completed.Load() != 5 {
		t.Errorf("completed = %d, want 5", p.completed.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	for i, session := range order {
		if session != uint64(i+1) {
			t.Fatalf("order = %v, want sessions 1..5 in submission order", order)
		}
	}
}

func TestPipelineQueueFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := newPipeline(func(*Task) {
		once.Do(func() { close(started) })
		<-release
	}, nil)

	// One task in flight plus a full queue behind it.
	if err := p.submit(&Task{Session: 1}); err != nil {
		t.Fatal(err)
	}
	<-started
	for i := 0; i < queueDepth; i++ {
		if err := p.submit(&Task{Session: uint64(i + 2)}); err != nil {
			t.Fatalf("submit %d: %v", i+2, err)
		}
	}

	err := p.submit(&Task{Session: 99})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
	if p.dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", p.dropped.Load())
	}
	if p.submitted.Load() != uint64(queueDepth+1) {
		t.Errorf("submitted = %d, want %d", p.submitted.Load(), queueDepth+1)
	}

	close(release)
	p.close()
	if p.pending() != 0 {
		t.Errorf("pending = %d after close, want 0", p.pending())
	}
}

func TestPipelineSurvivesPanic(t *testing.T) {
	var processed []uint64
	var mu sync.Mutex
	p := newPipeline(func(task *Task) {
		mu.Lock()
		processed = append(processed, task.Session)
		mu.Unlock()
		if task.Session == 1 {
			panic("engine blew up")
		}
	}, nil)

	p.submit(&Task{Session: 1})
	p.submit(&Task{Session: 2})
	p.close()

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 2 {
		t.Fatalf("processed %v, want both tasks despite the panic", processed)
	}
	if p.completed.Load() != 2 {
		t.Errorf("completed = %d, want 2", p.completed.Load())
	}
}

func TestPipelineCompletionHookSeesSettledCount(t *testing.T) {
	var mu sync.Mutex
	var readings []uint64
	var p *pipeline
	p = newPipeline(func(*Task) {}, func() {
		mu.Lock()
		readings = append(readings, p.pending())
		mu.Unlock()
	})

	if err := p.submit(&Task{Session: 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "task completion", func() bool { return p.completed.Load() == 1 })
	p.close()

	mu.Lock()
	defer mu.Unlock()
	if len(readings) != 1 || readings[0] != 0 {
		t.Errorf("hook readings = %v, want pending 0 after the task completed", readings)
	}
}

func TestPipelineCloseIdempotent(t *testing.T) {
	p := newPipeline(func(*Task) {}, nil)
	p.close()
	p.close()
}

func TestPipelineCloseDrainsPending(t *testing.T) {
	p := newPipeline(func(*Task) {
		time.Sleep(20 * time.Millisecond)
	}, nil)
	for i := 0; i < 3; i++ {
		if err := p.submit(&Task{Session: uint64(i + 1)}); err != nil {
			t.Fatal(err)
		}
	}
	p.close()
	if p.pending() != 0 {
		t.Errorf("pending = %d after close, want 0", p.pending())
	}
	if p.completed.Load() != 3 {
		t.Errorf("completed = %d, want 3", p.completed.Load())
	}
}

func TestPipelineSubmitNil(t *testing.T) {
	p := newPipeline(func(*Task) {}, nil)
	defer p.close()
	if err := p.submit(nil); err == nil {
		t.Error("submitting nil should fail, the sentinel is internal")
	}
}
