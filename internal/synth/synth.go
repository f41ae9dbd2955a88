// Package synth precomputes the procedural voice waveforms used when every
// network speech tier has failed: a "cry" and an alternate chirpy voice, both
// additive-sine with vibrato and a linear attack/release envelope, plus a
// plain tone beep as the last resort. The waveforms are fixed-length 16-bit
// mono PCM generated once per process; they are raw PCM and never pass
// through the WAV parser.
package synth

import (
	"math"
	"sync"
	"time"

	"github.com/MrWong99/squawkbox/internal/wav"
	"github.com/MrWong99/squawkbox/pkg/audio"
)

// SampleRate is the generation rate for all procedural waveforms.
const SampleRate = 11025

const (
	crySamples = 5500
	altSamples = 4200
)

var (
	cryOnce sync.Once
	cryWave []int16

	altOnce sync.Once
	altWave []int16
)

// Cry returns the shared sad-voice waveform: a falling wail around 780 Hz
// with slow glide and fast tremolo. The slice is generated once; callers must
// not modify it.
func Cry() []int16 {
	cryOnce.Do(func() {
		cryWave = make([]int16, crySamples)
		for i := range cryWave {
			t := float64(i) / SampleRate
			base := 780.0 + 90.0*math.Sin(2*math.Pi*2.8*t)
			glide := 120.0 * math.Sin(2*math.Pi*0.9*t)
			pitch := base + glide

			env := 1.0
			switch {
			case t < 0.03:
				env = t / 0.03
			case t > 0.42:
				env = max(0, 1.0-(t-0.42)/0.20)
			}

			wave := math.Sin(2*math.Pi*pitch*t) * 8000.0
			trem := math.Sin(2*math.Pi*35.0*t)*0.18 + 0.82
			cryWave[i] = int16(wave * env * trem)
		}
	})
	return cryWave
}

// AltVoice returns the shared happy-voice waveform: a brighter 660 Hz base
// with a wandering formant term and a blended second harmonic.
func AltVoice() []int16 {
	altOnce.Do(func() {
		altWave = make([]int16, altSamples)
		for i := range altWave {
			t := float64(i) / SampleRate
			base := 660.0 + 90.0*math.Sin(2*math.Pi*2.4*t)
			formant := 180.0 + 45.0*math.Sin(2*math.Pi*0.8*t)
			pitch := base + 120.0*math.Sin(2*math.Pi*0.4*t) + formant*math.Sin(2*math.Pi*1.8*t)

			env := 1.0
			switch {
			case t < 0.06:
				env = t / 0.06
			case t > 0.60:
				env = max(0, (0.70-t)/0.30)
			}

			wave := math.Sin(2*math.Pi*pitch*t) + 0.38*math.Sin(2*math.Pi*(pitch*2+120.0)*t)
			altWave[i] = int16(wave * 9000.0 * env)
		}
	})
	return altWave
}

// Tone generates a plain sine beep at freq for the given duration, with a
// short linear fade-in/out to avoid clicks.
func Tone(freq float64, dur time.Duration) []int16 {
	n := int(float64(SampleRate) * dur.Seconds())
	if n <= 0 {
		return nil
	}
	fade := min(n/8, SampleRate/100)
	out := make([]int16, n)
	for i := range out {
		t := float64(i) / SampleRate
		env := 1.0
		if fade > 0 {
			if i < fade {
				env = float64(i) / float64(fade)
			} else if i >= n-fade {
				env = float64(n-1-i) / float64(fade)
			}
		}
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 9000.0 * env)
	}
	return out
}

// StreamInfo returns the playback metadata for a waveform from this package,
// letting procedural audio go through the same triple-buffer engine as
// decoded streams.
func StreamInfo(samples []int16) wav.StreamInfo {
	return wav.StreamInfo{
		Channels:      1,
		BitsPerSample: 16,
		BlockAlign:    2,
		SampleRate:    SampleRate,
		DataBytes:     len(samples) * 2,
	}
}

// Bytes encodes a waveform as little-endian PCM for playback.
func Bytes(samples []int16) []byte {
	return audio.Int16ToBytes(samples)
}
