// Package audio is the capture boundary: platform backends push fixed-size
// PCM16 frames into a bounded queue that the recording loop polls.
package audio

import (
	"fmt"
	"strings"
	"sync/atomic"
)

const WAVHeaderSize = 44

// frameQueueDepth bounds capture-side buffering. A full queue drops the
// frame rather than stalling the device callback.
const frameQueueDepth = 64

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (Source, error)
	Close()
}

// Source is one capture stream. Frames() yields little-endian int16 PCM
// blocks; the channel is buffered so readers poll it with their own
// timeout and the device callback never blocks.
type Source interface {
	Start() error
	Stop()
	// Close releases the underlying device. The source is unusable after.
	Close()
	// Flush discards any frames still queued from the last run.
	Flush()
	Frames() <-chan []byte
	DeviceName() string
}

// FindDevice resolves a configured device name to a DeviceInfo. An empty
// name means the platform default and resolves to nil. Matching is
// case-insensitive, exact name first, then substring.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(name)
	for i := range devices {
		if strings.ToLower(devices[i].Name) == want {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matching %q", name)
}

type frameQueue struct {
	ch      chan []byte
	dropped atomic.Uint64
}

func newFrameQueue() *frameQueue {
	return &frameQueue{ch: make(chan []byte, frameQueueDepth)}
}

// push copies data into the queue without blocking. The copy matters: the
// device callback reuses its buffer.
func (q *frameQueue) push(data []byte) {
	if len(data) == 0 {
		return
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	select {
	case q.ch <- frame:
	default:
		q.dropped.Add(1)
	}
}

func (q *frameQueue) flush() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}

func (q *frameQueue) droppedCount() uint64 {
	return q.dropped.Load()
}
