package audio

import (
	"os"
	"sync"
)

const (
	fakeFrameSamples = 320 // 20ms at 16kHz
	fakeFrameBytes   = fakeFrameSamples * 2
)

// FakeContext replays a WAV file (or raw PCM) through the Source interface
// so the whole pipeline can run without a microphone.
type FakeContext struct {
	pcm []byte
}

func NewFakeContext(wavPath string) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (Source, error) {
	return NewFakeSource(f.pcm), nil
}

// FakeSource yields canned PCM on Start and accepts extra frames via Push.
type FakeSource struct {
	pcm []byte

	mu      sync.Mutex
	frames  chan []byte
	started bool
}

func NewFakeSource(pcm []byte) *FakeSource {
	depth := len(pcm)/fakeFrameBytes + frameQueueDepth
	return &FakeSource{
		pcm:    pcm,
		frames: make(chan []byte, depth),
	}
}

func (f *FakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	f.started = true
	for pos := 0; pos < len(f.pcm); pos += fakeFrameBytes {
		end := min(pos+fakeFrameBytes, len(f.pcm))
		frame := make([]byte, end-pos)
		copy(frame, f.pcm[pos:end])
		f.frames <- frame
	}
	return nil
}

func (f *FakeSource) Stop() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
}

func (f *FakeSource) Close() {}

// Push injects one frame, as if the device callback had fired.
func (f *FakeSource) Push(frame []byte) {
	data := make([]byte, len(frame))
	copy(data, frame)
	select {
	case f.frames <- data:
	default:
	}
}

func (f *FakeSource) Flush() {
	for {
		select {
		case <-f.frames:
		default:
			return
		}
	}
}

func (f *FakeSource) Frames() <-chan []byte { return f.frames }

func (f *FakeSource) DeviceName() string { return "fake" }
