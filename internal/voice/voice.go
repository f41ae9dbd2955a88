// Package voice owns the speech acquisition engine: a single worker goroutine
// drains a bounded command queue and runs each request through the fallback
// chain (gateway, static mirrors, procedural waveform, plain tone), recording
// per-channel state for the status endpoints. The engine is the only writer
// of channel state; everyone else reads value snapshots.
package voice

import "time"

// Tone selects the voice channel a request plays on.
type Tone string

const (
	ToneDefault   Tone = "default"
	ToneSecondary Tone = "secondary"
)

// Tones lists all channels, in creation order.
var Tones = []Tone{ToneDefault, ToneSecondary}

// State is the lifecycle of one channel's current request.
type State string

const (
	StatePending     State = "pending"
	StateDownloading State = "downloading"
	StateDownloaded  State = "downloaded"
	StateFailed      State = "failed"
)

// Affect selects the procedural waveform when every network tier fails.
type Affect string

const (
	AffectSad   Affect = "sad"
	AffectHappy Affect = "happy"
)

// Command is one speech request. Submission is non-blocking; when the queue
// is full the command is dropped.
type Command struct {
	ID        string
	Text      string
	Tone      Tone
	Quick     bool
	RateScale float64
	Affect    Affect
}

// ChannelStatus is a value snapshot of one channel, safe to hand to other
// goroutines.
type ChannelStatus struct {
	Tone      Tone   `json:"tone"`
	State     State  `json:"state"`
	Message   string `json:"message"`
	BufferLen int    `json:"buffer_len"`
	Loaded    bool   `json:"loaded"`

	// Confirmed distinguishes "played and the sink drained" from "the sink
	// accepted all audio but never confirmed consuming it". Only meaningful
	// once State is downloaded.
	Confirmed bool `json:"confirmed"`

	RequestID string    `json:"request_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// successStatuses are the short codes that mean audio actually played. A
// generic failure code never overwrites one of these; progress markers like
// "MIOTTS" are deliberately not success tokens.
var successStatuses = map[string]bool{
	"MI_OK":     true,
	"MI_OK_URL": true,
	"STREAM":    true,
}

// isSuccessStatus reports whether status records played audio.
func isSuccessStatus(status string) bool {
	return successStatuses[status]
}
