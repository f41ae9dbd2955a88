// Package effects implements the optional voice filter pipeline: pitch shift,
// ring modulation, bit crush, and sample-hold over 16-bit PCM, plus the
// composite robot-voice chain. Every function is a pure transform on a sample
// slice; the playback engine applies them per chunk via a stateful
// [Processor] so modulation phase stays continuous across chunk boundaries.
package effects

import "math"

// PitchShift raises the pitch of pcm by factor using linear interpolation,
// shrinking the output by roughly 1/factor. Factors <= 1 return the input
// unchanged (the chain only ever shifts up).
func PitchShift(pcm []int16, factor float64) []int16 {
	if factor <= 1.0 || len(pcm) == 0 {
		return pcm
	}
	out := make([]int16, 0, int(float64(len(pcm))/factor)+1)
	for pos := 0.0; pos < float64(len(pcm)); pos += factor {
		idx := int(pos)
		if idx >= len(pcm) {
			break
		}
		if idx+1 < len(pcm) {
			frac := pos - float64(idx)
			s0, s1 := int32(pcm[idx]), int32(pcm[idx+1])
			out = append(out, clamp16(s0+int32(float64(s1-s0)*frac)))
		} else {
			out = append(out, pcm[idx])
		}
	}
	return out
}

// sineLUT is a 256-entry full-cycle sine table in int16 range, used by the
// ring modulator with a fixed-point phase accumulator.
var sineLUT = func() [256]int16 {
	var lut [256]int16
	for i := range lut {
		lut[i] = int16(math.Round(32767 * math.Sin(2*math.Pi*float64(i)/256)))
	}
	return lut
}()

// RingMod multiplies pcm in place by a carrier sine of carrierHz. phase is the
// fixed-point accumulator carried across calls (8.16 LUT index); the updated
// phase is returned so chunked processing stays continuous.
func RingMod(pcm []int16, sampleRate int, carrierHz float64, phase uint32) uint32 {
	if len(pcm) == 0 || carrierHz <= 0 || sampleRate <= 0 {
		return phase
	}
	inc := uint32(carrierHz * 256.0 * 65536.0 / float64(sampleRate))
	for i := range pcm {
		mod := int32(sineLUT[(phase>>16)&0xFF])
		pcm[i] = clamp16((int32(pcm[i]) * mod) >> 15)
		phase += inc
	}
	return phase
}

// BitCrush reduces pcm in place to the given bit depth with a sign-preserving
// mask. Depths >= 16 are a no-op.
func BitCrush(pcm []int16, bits int) {
	if bits >= 16 || bits < 1 {
		return
	}
	mask := uint16(0xFFFF) << (16 - bits)
	for i := range pcm {
		pcm[i] = int16(uint16(pcm[i]) & mask)
	}
}

// SampleHold holds every hold-th sample across the following hold-1 samples,
// in place. offset is the position within the current hold window carried
// across calls; the updated offset and held value are returned.
func SampleHold(pcm []int16, hold int, offset int, held int16) (int, int16) {
	if hold <= 1 {
		return offset, held
	}
	for i := range pcm {
		if offset == 0 {
			held = pcm[i]
		} else {
			pcm[i] = held
		}
		offset = (offset + 1) % hold
	}
	return offset, held
}

// Robot chain parameters, tuned for a metallic toy voice.
const (
	robotBits      = 4
	robotHold      = 12
	robotCarrierHz = 1000.0
	robotPitch     = 1.3
)

// Robot applies the composite robot-voice chain to a complete buffer:
// bit crush, sample hold, ring modulation, then pitch shift. The returned
// slice is shorter than the input by the pitch factor.
func Robot(pcm []int16, sampleRate int) []int16 {
	BitCrush(pcm, robotBits)
	SampleHold(pcm, robotHold, 0, 0)
	RingMod(pcm, sampleRate, robotCarrierHz, 0)
	return PitchShift(pcm, robotPitch)
}

// Processor applies the robot chain chunk by chunk, carrying modulator phase
// and hold state across chunks so the effect is seamless on streamed audio.
// One goroutine owns a Processor.
type Processor struct {
	sampleRate int
	phase      uint32
	holdOffset int
	holdValue  int16
}

// NewProcessor creates a chunked robot-voice processor for streams at the
// given sample rate.
func NewProcessor(sampleRate int) *Processor {
	return &Processor{sampleRate: sampleRate}
}

// Apply transforms one chunk in place and returns the (possibly shorter)
// result.
func (p *Processor) Apply(pcm []int16) []int16 {
	BitCrush(pcm, robotBits)
	p.holdOffset, p.holdValue = SampleHold(pcm, robotHold, p.holdOffset, p.holdValue)
	p.phase = RingMod(pcm, p.sampleRate, robotCarrierHz, p.phase)
	return PitchShift(pcm, robotPitch)
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
