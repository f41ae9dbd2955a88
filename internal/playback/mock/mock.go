// Package mock provides a scripted playback sink for tests: it records every
// submission together with the queue depth observed at submit time, and can
// either drain automatically or hold buffers until the test releases them.
package mock

import (
	"errors"
	"sync"
)

// Submission records one Submit call.
type Submission struct {
	Data         []byte
	DepthAtEntry int // queue depth observed just before this submission
}

// Sink is a fake playback sink. The zero value auto-drains: every submitted
// buffer is considered consumed after ConsumeAfter queue-depth polls
// (default: immediately).
type Sink struct {
	mu sync.Mutex

	// Hold, when true, keeps all submitted buffers in the queue until
	// Consume is called.
	Hold bool

	// FailSubmit, when set, is returned by the next Submit call.
	FailSubmit error

	// ConsumeAfter simulates hardware consumption speed in auto-drain mode:
	// each buffer is drained after this many QueueDepth polls. Zero drains
	// on the first poll.
	ConsumeAfter int

	begun       bool
	sampleRate  int
	channels    int
	bits        int
	queue       int
	polls       int
	submissions []Submission
	closed      bool
}

// Begin records the stream format.
func (s *Sink) Begin(sampleRate, channels, bits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begun = true
	s.sampleRate = sampleRate
	s.channels = channels
	s.bits = bits
	return nil
}

// Submit records the buffer and the depth seen on entry.
func (s *Sink) Submit(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.begun {
		return errors.New("mock: Submit before Begin")
	}
	if s.FailSubmit != nil {
		err := s.FailSubmit
		s.FailSubmit = nil
		return err
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	s.submissions = append(s.submissions, Submission{Data: cp, DepthAtEntry: s.queue})
	s.queue++
	return nil
}

// QueueDepth reports the simulated in-flight count, draining one buffer per
// ConsumeAfter polls unless Hold is set.
func (s *Sink) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Hold && s.queue > 0 {
		s.polls++
		if s.polls > s.ConsumeAfter {
			s.queue--
			s.polls = 0
		}
	}
	return s.queue
}

// Consume marks n held buffers as consumed.
func (s *Sink) Consume(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue -= n
	if s.queue < 0 {
		s.queue = 0
	}
}

// Close marks the sink closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Submissions returns a copy of all recorded submissions.
func (s *Sink) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}

// PCM returns all submitted bytes concatenated in order.
func (s *Sink) PCM() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, sub := range s.submissions {
		out = append(out, sub.Data...)
	}
	return out
}

// Format returns the stream format recorded by Begin.
func (s *Sink) Format() (sampleRate, channels, bits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate, s.channels, s.bits
}
