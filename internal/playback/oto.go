package playback

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/squawkbox/pkg/audio"
)

// Device output format. The oto context is created once per process and its
// format cannot change afterwards, so every stream is converted to this format
// on submission instead of renegotiating the device.
const (
	deviceSampleRate = 48000
	deviceChannels   = 2
)

// OtoSink plays audio through the platform audio device via oto. The sink
// keeps a FIFO of submitted chunks which the oto player consumes on its own
// goroutine; QueueDepth reports the chunks not yet fully read by the device.
type OtoSink struct {
	ctx    *oto.Context
	player *oto.Player

	mu      sync.Mutex
	queue   [][]byte // pending converted chunks, head first
	partial []byte   // remainder of the chunk currently being consumed
	src     audio.Format
}

// otoReady guards one-time context creation; oto allows a single context per
// process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// NewOtoSink opens the platform audio device. Safe to call more than once;
// the underlying device context is shared.
func NewOtoSink() (*OtoSink, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   deviceSampleRate,
			ChannelCount: deviceChannels,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(op)
		if otoErr == nil {
			select {
			case <-ready:
			case <-time.After(5 * time.Second):
				otoErr = errors.New("playback: audio device not ready")
			}
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("playback: open audio device: %w", otoErr)
	}

	s := &OtoSink{ctx: otoCtx}
	s.player = otoCtx.NewPlayer(otoReader{s})
	s.player.Play()
	return s, nil
}

// Begin records the stream's source format for per-chunk conversion.
func (s *OtoSink) Begin(sampleRate, channels, bits int) error {
	if sampleRate <= 0 || channels < 1 || channels > 2 || (bits != 8 && bits != 16) {
		return fmt.Errorf("playback: unsupported stream format %dHz/%dch/%dbit", sampleRate, channels, bits)
	}
	s.mu.Lock()
	s.src = audio.Format{SampleRate: sampleRate, Channels: channels, Bits: bits}
	s.mu.Unlock()
	return nil
}

// Submit converts buf to the device format and appends it to the FIFO. The
// conversion copies, so the caller's buffer may be reused immediately — the
// queue-depth contract still applies to pace the producer.
func (s *OtoSink) Submit(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src.SampleRate == 0 {
		return errors.New("playback: Submit before Begin")
	}
	converted := audio.Convert(buf, s.src, audio.Format{
		SampleRate: deviceSampleRate,
		Channels:   deviceChannels,
		Bits:       16,
	})
	if len(converted) == 0 {
		return nil
	}
	s.queue = append(s.queue, converted)
	return nil
}

// QueueDepth reports chunks submitted but not yet fully consumed by the
// device, counting a partially read chunk as in flight.
func (s *OtoSink) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := len(s.queue)
	if len(s.partial) > 0 {
		depth++
	}
	return depth
}

// Close stops the player. The shared device context stays open for the
// process lifetime.
func (s *OtoSink) Close() error {
	if s.player != nil {
		return s.player.Close()
	}
	return nil
}

// otoReader adapts the chunk FIFO to the pull-based io.Reader the oto player
// consumes. When the queue is empty it feeds silence so the device keeps
// running without underrun noise.
type otoReader struct{ s *OtoSink }

func (r otoReader) Read(p []byte) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(p) {
		if len(s.partial) == 0 {
			if len(s.queue) == 0 {
				break
			}
			s.partial = s.queue[0]
			s.queue = s.queue[1:]
		}
		c := copy(p[n:], s.partial)
		s.partial = s.partial[c:]
		n += c
	}
	if n == 0 {
		// Silence keeps the stream alive between utterances.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	return n, nil
}

// Interface check.
var (
	_ Sink      = (*OtoSink)(nil)
	_ io.Reader = otoReader{}
)
