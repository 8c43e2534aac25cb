//go:build !linux

package cues

import (
	"encoding/binary"
	"time"

	"github.com/gen2brain/malgo"

	"speakd/log"
)

func playSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("cue playback: %v", err)
		return
	}
	defer func() {
		mctx.Uninit()
		mctx.Free()
	}()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = cueSampleRate

	pos := 0
	done := make(chan struct{}, 1)
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frames uint32) {
			for i := range output {
				output[i] = 0
			}
			for i := 0; i < int(frames) && pos < len(samples); i++ {
				binary.LittleEndian.PutUint16(output[i*2:], uint16(samples[pos]))
				pos++
			}
			if pos >= len(samples) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		log.Warnf("cue playback: %v", err)
		return
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Warnf("cue playback: %v", err)
		return
	}
	select {
	case <-done:
		// Let the tail drain before tearing the device down.
		time.Sleep(50 * time.Millisecond)
	case <-time.After(time.Second):
	}
}
