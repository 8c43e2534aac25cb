// Package encoder turns a session's PCM samples into WAV or FLAC bytes,
// used for the recent-session artifact and for shipping audio to the
// transcription engine.
package encoder

import (
	"encoding/binary"
	"fmt"
)

const (
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

func New(format string, sampleRate int) (Encoder, error) {
	switch format {
	case "wav":
		return NewWav(sampleRate), nil
	case "flac":
		return NewFlac(sampleRate)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Encode runs one full PCM16LE byte block through an encoder in BlockSize
// chunks and returns the encoded bytes.
func Encode(format string, sampleRate int, pcm []byte) ([]byte, error) {
	enc, err := New(format, sampleRate)
	if err != nil {
		return nil, err
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
