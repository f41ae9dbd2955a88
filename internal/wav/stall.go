package wav

import (
	"errors"
	"io"
	"time"
)

// ErrStreamStall is returned when a single read produces no bytes within the
// configured stall timeout. The bound is per-read, not per-stream: a slow but
// steadily flowing source never trips it, while a frozen peer is cut off
// within one timeout regardless of how much data arrived before.
var ErrStreamStall = errors.New("wav: stream stalled")

// defaultStallTimeout bounds each individual read on a live source.
const defaultStallTimeout = 15 * time.Second

// readResult carries one completed read from the pump goroutine.
type readResult struct {
	data []byte
	err  error
}

// StallReader wraps an io.Reader and bounds every Read call with a stall
// timeout. It is not safe for concurrent use; one goroutine owns it, matching
// the single-task discipline of the voice engine.
//
// When a read times out the underlying read is left running in its goroutine;
// it unblocks once the caller closes the underlying source (e.g. the HTTP
// response body), which callers do when abandoning an attempt.
type StallReader struct {
	r       io.Reader
	timeout time.Duration

	pending chan readResult // in-flight read, nil when none
	buffed  []byte          // bytes from a read that completed after a timeout
	heldErr error           // error delivered once buffed is drained
}

// NewStallReader wraps r with a per-read stall timeout. A non-positive timeout
// selects the 15 s default.
func NewStallReader(r io.Reader, timeout time.Duration) *StallReader {
	if timeout <= 0 {
		timeout = defaultStallTimeout
	}
	return &StallReader{r: r, timeout: timeout}
}

// Read implements io.Reader. It returns [ErrStreamStall] when no bytes arrive
// within the stall timeout.
func (sr *StallReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Serve bytes that arrived after a previous timeout first.
	if len(sr.buffed) > 0 {
		n := copy(p, sr.buffed)
		sr.buffed = sr.buffed[n:]
		if len(sr.buffed) == 0 && sr.heldErr != nil {
			err := sr.heldErr
			sr.heldErr = nil
			return n, err
		}
		return n, nil
	}

	if sr.pending == nil {
		ch := make(chan readResult, 1)
		buf := make([]byte, len(p))
		go func() {
			n, err := sr.r.Read(buf)
			ch <- readResult{data: buf[:n], err: err}
		}()
		sr.pending = ch
	}

	timer := time.NewTimer(sr.timeout)
	defer timer.Stop()

	select {
	case res := <-sr.pending:
		sr.pending = nil
		n := copy(p, res.data)
		if n < len(res.data) {
			sr.buffed = res.data[n:]
			// Hold the error until the buffered remainder is drained.
			sr.heldErr = res.err
			return n, nil
		}
		return n, res.err
	case <-timer.C:
		return 0, ErrStreamStall
	}
}
