package voice

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/squawkbox/internal/playback"
	"github.com/MrWong99/squawkbox/internal/wav"
)

// maxCaptureBytes caps the decoded-audio copy kept for the buffer download
// endpoint. Playback itself is unbounded; only the retained copy is clipped.
const maxCaptureBytes = 192 << 10

// capture is the retained copy of the most recent successful decode.
type capture struct {
	data []byte
	info wav.StreamInfo
}

// captureWriter tees decoded PCM into a bounded buffer. Writes past the limit
// are silently discarded so a long stream never aborts the tee.
type captureWriter struct {
	buf []byte
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if room := maxCaptureBytes - len(w.buf); room > 0 {
		w.buf = append(w.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

// streamPlayer adapts the WAV parser and playback engine to the dispatcher's
// Player contract: parse the live stream, play it chunk by chunk, and retain
// a bounded copy of the PCM for diagnostics.
type streamPlayer struct {
	eng          *playback.Engine
	stallTimeout time.Duration

	mu   sync.Mutex
	last *capture
}

func newStreamPlayer(eng *playback.Engine, stallTimeout time.Duration) *streamPlayer {
	return &streamPlayer{eng: eng, stallTimeout: stallTimeout}
}

// Play decodes and plays one live WAV stream.
func (p *streamPlayer) Play(ctx context.Context, body io.Reader, rateScale float64) error {
	sr := wav.NewStallReader(body, p.stallTimeout)
	info, err := wav.ParseHeader(sr)
	if err != nil {
		return fmt.Errorf("voice: parsing stream: %w", err)
	}

	cw := &captureWriter{}
	if err := p.eng.Play(ctx, io.TeeReader(sr, cw), info, rateScale); err != nil {
		return err
	}

	p.mu.Lock()
	p.last = &capture{data: cw.buf, info: info}
	p.mu.Unlock()
	return nil
}

// takeLast returns the capture from the most recent successful Play, or nil.
func (p *streamPlayer) takeLast() *capture {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.last
	p.last = nil
	return c
}
