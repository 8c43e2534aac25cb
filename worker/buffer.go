package worker

import "sync"

// buffer accumulates captured PCM frames for the active session. The
// capture goroutine appends while stop drains, so every access holds the
// lock; frames are already copies by the time they arrive here.
type buffer struct {
	mu     sync.Mutex
	frames [][]byte
	bytes  int64
}

// append stores one frame and returns the running byte total, which the
// capture loop checks against the session size limit.
func (b *buffer) append(frame []byte) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
	b.bytes += int64(len(frame))
	return b.bytes
}

func (b *buffer) size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// drain concatenates everything accumulated so far into one contiguous
// block and resets the buffer for the next session.
func (b *buffer) drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bytes == 0 {
		b.frames = nil
		return nil
	}
	out := make([]byte, 0, b.bytes)
	for _, f := range b.frames {
		out = append(out, f...)
	}
	b.frames = nil
	b.bytes = 0
	return out
}
