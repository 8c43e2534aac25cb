// Package cues plays short feedback ticks on session start and stop.
// Disabled by default: the host process usually owns UI feedback, this is
// for running the bridge standalone.
package cues

import (
	"math"
	"sync"
)

const cueSampleRate = 44100

var (
	enabled      bool
	startSamples []int16
	endSamples   []int16
	genOnce      sync.Once
)

func Enable() {
	enabled = true
}

func initSamples() {
	// Start cue: snappy high tick. End cue: slightly lower and longer.
	// 200ms tails give the output buffer room to fill before the decay
	// reaches silence.
	startSamples = generateTick(1200, 0.2, 0.5, 60)
	endSamples = generateTick(900, 0.2, 0.5, 40)
}

// generateTick renders an exponentially decaying sine burst as mono PCM16.
func generateTick(freq, duration, volume, decay float64) []int16 {
	n := int(cueSampleRate * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / cueSampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func PlayStart() {
	if !enabled {
		return
	}
	genOnce.Do(initSamples)
	go playSamples(startSamples)
}

func PlayEnd() {
	if !enabled {
		return
	}
	genOnce.Do(initSamples)
	go playSamples(endSamples)
}
