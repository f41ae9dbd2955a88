package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/squawkbox/internal/wav"
)

// Buffering geometry and wait bounds. The three-slot ring matches the DMA
// double-buffer-plus-one pattern: while one chunk plays and one sits queued,
// the third slot is being filled.
const (
	// ChunkBytes is the capacity of each ring slot.
	ChunkBytes = 2048

	// slotCount is the number of ring slots.
	slotCount = 3

	// maxQueued is the in-flight high-water mark. A slot is reused only once
	// the sink's queue depth has dropped below this value.
	maxQueued = 2

	queuePollInterval = 5 * time.Millisecond
	queueWaitBound    = 3 * time.Second
	drainPollInterval = 10 * time.Millisecond
	drainWaitBound    = 15 * time.Second
)

var (
	// ErrSubmitRejected is returned when the sink refuses a buffer.
	ErrSubmitRejected = errors.New("playback: sink rejected buffer")

	// ErrSinkStall is returned when the sink's queue fails to drain below the
	// high-water mark within the wait bound. Submitting anyway would hand the
	// hardware a buffer the engine is about to overwrite.
	ErrSinkStall = errors.New("playback: sink queue failed to drain")
)

// Filter is an optional per-chunk PCM transform applied before submission,
// e.g. the robot-voice effect chain. It receives and returns little-endian
// 16-bit PCM; it may shrink the chunk but must keep it frame-aligned.
type Filter func(pcm []byte) []byte

// Engine streams PCM from a reader into a [Sink] through a fixed three-slot
// buffer ring. One goroutine drives an Engine at a time.
type Engine struct {
	sink   Sink
	filter Filter

	queuePoll  time.Duration
	queueBound time.Duration
	drainPoll  time.Duration
	drainBound time.Duration

	// confirmed records whether the sink drained fully at the end of the
	// last Play. Written and read by the driving goroutine only.
	confirmed bool

	slots [slotCount][]byte
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilter installs a per-chunk PCM transform. Only applied to 16-bit
// streams; 8-bit chunks bypass the filter.
func WithFilter(f Filter) Option {
	return func(e *Engine) { e.filter = f }
}

// WithWaitBounds overrides the sink poll intervals and wait bounds. Mainly
// for tests and sinks with unusual consumption latency.
func WithWaitBounds(queuePoll, queueBound, drainPoll, drainBound time.Duration) Option {
	return func(e *Engine) {
		e.queuePoll = queuePoll
		e.queueBound = queueBound
		e.drainPoll = drainPoll
		e.drainBound = drainBound
	}
}

// New creates an Engine writing to sink.
func New(sink Sink, opts ...Option) *Engine {
	e := &Engine{
		sink:       sink,
		queuePoll:  queuePollInterval,
		queueBound: queueWaitBound,
		drainPoll:  drainPollInterval,
		drainBound: drainWaitBound,
	}
	for i := range e.slots {
		e.slots[i] = make([]byte, ChunkBytes)
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Play streams info.DataBytes of PCM from r into the sink at the declared
// sample rate scaled by rateScale (quick-mode speed-up). Reads are
// frame-aligned; each filled chunk is submitted without stopping audio that
// is already queued. Play returns once the sink reports an empty queue or the
// drain bound expires; [Engine.Confirmed] reports which of the two ended it.
func (e *Engine) Play(ctx context.Context, r io.Reader, info wav.StreamInfo, rateScale float64) error {
	e.confirmed = false
	if rateScale <= 0 {
		rateScale = 1.0
	}
	playRate := int(float64(info.SampleRate) * rateScale)
	if err := e.sink.Begin(playRate, info.Channels, info.BitsPerSample); err != nil {
		return fmt.Errorf("playback: begin: %w", err)
	}

	frame := info.FrameBytes()
	remaining := info.DataBytes
	slot := 0

	slog.Debug("playback started",
		"bytes", remaining,
		"rate", info.SampleRate,
		"play_rate", playRate,
		"channels", info.Channels,
		"bits", info.BitsPerSample,
	)

	for remaining > 0 {
		want := min(remaining, ChunkBytes)
		want -= want % frame
		if want == 0 {
			// A sub-frame tail cannot be played; drop it.
			if _, err := io.CopyN(io.Discard, r, int64(remaining)); err != nil {
				return fmt.Errorf("playback: discard tail: %w", err)
			}
			break
		}

		buf := e.slots[slot][:want]
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("playback: read chunk: %w", err)
		}
		remaining -= want

		if e.filter != nil && info.BitsPerSample == 16 {
			buf = e.filter(buf)
			if len(buf) == 0 {
				continue
			}
		}

		if err := e.sink.Submit(buf); err != nil {
			return fmt.Errorf("%w: %w", ErrSubmitRejected, err)
		}
		slot = (slot + 1) % slotCount

		// The next slot may still be referenced by the hardware; wait for the
		// queue to drop below the high-water mark before refilling it.
		if err := e.waitQueueBelow(ctx, maxQueued); err != nil {
			return err
		}
	}

	e.confirmed = e.drain(ctx)
	return nil
}

// Confirmed reports whether the sink confirmed consuming everything from the
// most recent Play. False means the sink accepted all data but the drain
// bound expired (or the context ended) before the queue emptied, so playback
// completion is unverified.
func (e *Engine) Confirmed() bool {
	return e.confirmed
}

// waitQueueBelow polls the sink until its queue depth drops below limit,
// bounded by the queue wait bound.
func (e *Engine) waitQueueBelow(ctx context.Context, limit int) error {
	deadline := time.Now().Add(e.queueBound)
	for e.sink.QueueDepth() >= limit {
		if time.Now().After(deadline) {
			return ErrSinkStall
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.queuePoll):
		}
	}
	return nil
}

// drain waits for the sink to consume everything queued, bounded by the drain
// wait bound. Expiry does not fail the play: all data was accepted, the sink
// just has not confirmed consumption. The return value reports whether the
// queue actually emptied.
func (e *Engine) drain(ctx context.Context) bool {
	deadline := time.Now().Add(e.drainBound)
	for e.sink.QueueDepth() > 0 {
		if time.Now().After(deadline) {
			slog.Warn("playback drain wait expired", "queue_depth", e.sink.QueueDepth())
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.drainPoll):
		}
	}
	return true
}
