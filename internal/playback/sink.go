// Package playback drives real-time audio output from a live PCM stream
// without racing the hardware consumer. The engine rotates three fixed
// buffers: it refills a slot only once the sink's in-flight queue has drained
// below the high-water mark, so a buffer is never rewritten while the device
// may still be reading it.
package playback

// Sink is the hardware audio output abstraction. Submit must enqueue the
// buffer without blocking and without stopping audio already queued; the
// engine relies on QueueDepth to know when a previously submitted buffer has
// been consumed and its slot may be reused.
//
// Implementations are driven by a single goroutine at a time.
type Sink interface {
	// Begin prepares the sink for a stream in the given format. It is called
	// once per Play before any Submit.
	Begin(sampleRate, channels, bits int) error

	// Submit enqueues buf for playback. The sink must either copy buf or
	// count it in QueueDepth until fully consumed.
	Submit(buf []byte) error

	// QueueDepth reports the number of submitted buffers not yet consumed.
	QueueDepth() int

	// Close releases the sink.
	Close() error
}
