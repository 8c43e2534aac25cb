package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFrameQueuePushCopies(t *testing.T) {
	q := newFrameQueue()
	buf := []byte{1, 2, 3, 4}
	q.push(buf)
	buf[0] = 99

	frame := <-q.ch
	if frame[0] != 1 {
		t.Error("push must copy, the device callback reuses its buffer")
	}
}

func TestFrameQueueDropsWhenFull(t *testing.T) {
	q := newFrameQueue()
	frame := []byte{0, 0}
	for i := 0; i < frameQueueDepth+3; i++ {
		q.push(frame)
	}
	if got := q.droppedCount(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
	q.flush()
	if len(q.ch) != 0 {
		t.Errorf("queue not empty after flush: %d frames", len(q.ch))
	}
}

func TestFrameQueueIgnoresEmpty(t *testing.T) {
	q := newFrameQueue()
	q.push(nil)
	q.push([]byte{})
	if len(q.ch) != 0 {
		t.Error("empty pushes should be ignored")
	}
}

type listContext struct {
	devices []DeviceInfo
}

func (c *listContext) Devices() ([]DeviceInfo, error) { return c.devices, nil }
func (c *listContext) Close()                         {}

func (c *listContext) NewCapture(*DeviceInfo, CaptureConfig) (Source, error) {
	return NewFakeSource(nil), nil
}

func TestFindDevice(t *testing.T) {
	ctx := &listContext{devices: []DeviceInfo{
		{ID: "0", Name: "Built-in Microphone"},
		{ID: "1", Name: "USB Audio Device"},
	}}

	tests := []struct {
		name   string
		wantID string
		wantOK bool
	}{
		{"", "", true}, // empty means default, resolves to nil
		{"usb audio device", "1", true},
		{"built-in", "0", true},
		{"USB", "1", true},
		{"webcam", "", false},
	}
	for _, tt := range tests {
		dev, err := FindDevice(ctx, tt.name)
		if tt.wantOK != (err == nil) {
			t.Errorf("FindDevice(%q): err = %v", tt.name, err)
			continue
		}
		if err != nil {
			continue
		}
		if tt.name == "" {
			if dev != nil {
				t.Errorf("FindDevice(\"\") = %v, want nil", dev)
			}
			continue
		}
		if dev.ID != tt.wantID {
			t.Errorf("FindDevice(%q) = %s, want device %s", tt.name, dev.ID, tt.wantID)
		}
	}
}

func TestFakeSourceFraming(t *testing.T) {
	pcm := make([]byte, fakeFrameBytes+100) // one full frame plus a tail
	src := NewFakeSource(pcm)
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}

	first := <-src.Frames()
	if len(first) != fakeFrameBytes {
		t.Errorf("first frame = %d bytes, want %d", len(first), fakeFrameBytes)
	}
	second := <-src.Frames()
	if len(second) != 100 {
		t.Errorf("tail frame = %d bytes, want 100", len(second))
	}
}

func TestFakeContextStripsWAVHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	data := make([]byte, WAVHeaderSize+200)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, err := NewFakeContext(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(ctx.pcm) != 200 {
		t.Errorf("pcm = %d bytes, want 200 after header strip", len(ctx.pcm))
	}
}
