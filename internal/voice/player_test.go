package voice

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/squawkbox/internal/playback"
	"github.com/MrWong99/squawkbox/internal/playback/mock"
	"github.com/MrWong99/squawkbox/internal/wav"
)

func TestCaptureWriter_BoundedButNeverErrors(t *testing.T) {
	cw := &captureWriter{}
	chunk := make([]byte, 64<<10)
	for i := 0; i < 5; i++ {
		n, err := cw.Write(chunk)
		if err != nil || n != len(chunk) {
			t.Fatalf("Write = (%d, %v), want full accept", n, err)
		}
	}
	if len(cw.buf) != maxCaptureBytes {
		t.Errorf("capture size = %d, want capped at %d", len(cw.buf), maxCaptureBytes)
	}
}

func TestStreamPlayer_PlaysAndCaptures(t *testing.T) {
	sink := &mock.Sink{}
	p := newStreamPlayer(playback.New(sink), time.Second)

	body := testWAV(1500)
	if err := p.Play(context.Background(), bytes.NewReader(body), 1.0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	rec := p.takeLast()
	if rec == nil || len(rec.data) != 1500 {
		t.Fatalf("capture = %+v, want 1500 decoded bytes", rec)
	}
	if rec.info.SampleRate != 22050 || rec.info.Channels != 1 {
		t.Errorf("capture info = %+v, want mono 22050", rec.info)
	}
	// takeLast consumes the capture.
	if p.takeLast() != nil {
		t.Error("second takeLast returned a stale capture")
	}
}

func TestStreamPlayer_RejectsNonWav(t *testing.T) {
	p := newStreamPlayer(playback.New(&mock.Sink{}), time.Second)
	err := p.Play(context.Background(), bytes.NewReader([]byte("<html>not audio</html>")), 1.0)
	if !errors.Is(err, wav.ErrBadRIFFHeader) {
		t.Fatalf("err = %v, want ErrBadRIFFHeader", err)
	}
	if p.takeLast() != nil {
		t.Error("failed play left a capture behind")
	}
}
