package encoder

import (
	"bytes"
	"encoding/binary"
)

// WavEncoder writes a canonical 44-byte RIFF header followed by raw PCM16LE
// data. The header is patched with final sizes on Close.
type WavEncoder struct {
	buf         bytes.Buffer
	sampleRate  int
	totalFrames uint64
}

func NewWav(sampleRate int) *WavEncoder {
	e := &WavEncoder{sampleRate: sampleRate}
	e.buf.Write(make([]byte, 44)) // placeholder header
	return e
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	data := make([]byte, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	e.buf.Write(data)
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	b := e.buf.Bytes()
	dataSize := len(b) - 44

	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], uint32(36+dataSize))
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 16)
	binary.LittleEndian.PutUint16(b[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(b[22:24], Channels)
	binary.LittleEndian.PutUint32(b[24:28], uint32(e.sampleRate))
	binary.LittleEndian.PutUint32(b[28:32], uint32(e.sampleRate*Channels*BitsPerSample/8))
	binary.LittleEndian.PutUint16(b[32:34], Channels*BitsPerSample/8) // block align
	binary.LittleEndian.PutUint16(b[34:36], BitsPerSample)
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], uint32(dataSize))
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}
