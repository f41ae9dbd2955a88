package voice

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/squawkbox/internal/discovery"
	"github.com/MrWong99/squawkbox/internal/dispatch"
	"github.com/MrWong99/squawkbox/internal/observe"
	"github.com/MrWong99/squawkbox/internal/playback"
	"github.com/MrWong99/squawkbox/internal/synth"
	"github.com/MrWong99/squawkbox/internal/wav"
)

const (
	// queueDepth bounds the command queue; a submission against a full queue
	// is dropped.
	queueDepth = 4

	defaultStallTimeout        = 15 * time.Second
	defaultMirrorFirstDelay    = 5 * time.Second
	defaultMirrorGap           = 350 * time.Millisecond
	defaultMirrorHeaderTimeout = 15 * time.Second

	toneFreq     = 880.0
	toneDuration = 350 * time.Millisecond
)

// defaultMirrors are the pre-recorded clip URLs per tone, primary then
// fallback host.
var defaultMirrors = map[Tone][]string{
	ToneDefault: {
		"https://raw.githubusercontent.com/pdx-cs-sound/wavs/main/voice-note.wav",
		"https://cdn.jsdelivr.net/gh/pdx-cs-sound/wavs@main/voice-note.wav",
	},
	ToneSecondary: {
		"https://raw.githubusercontent.com/pdx-cs-sound/wavs/main/overdrive.wav",
		"https://cdn.jsdelivr.net/gh/pdx-cs-sound/wavs@main/overdrive.wav",
	},
}

// channel is the mutable per-tone state. Only the worker goroutine writes it;
// reads go through snapshots under the engine mutex.
type channel struct {
	state     State
	message   string
	buffer    []byte
	info      wav.StreamInfo
	confirmed bool
	requestID string
	updated   time.Time
}

// Engine runs the fallback chain for queued speech commands and owns all
// channel state.
type Engine struct {
	play       *playback.Engine
	player     *streamPlayer
	dispatcher *dispatch.Dispatcher
	prober     *discovery.Prober
	client     *http.Client
	log        *slog.Logger
	metrics    *observe.Metrics

	mirrors             map[Tone][]string
	mirrorFirstDelay    time.Duration
	mirrorGap           time.Duration
	mirrorHeaderTimeout time.Duration
	stallTimeout        time.Duration
	dispatchOpts        []dispatch.Option

	// candidatesFn and gatewayFn are swappable in tests.
	candidatesFn func(override string, gw net.IP) []string
	gatewayFn    func() net.IP

	queue   chan Command
	running atomic.Bool

	mu           sync.RWMutex
	channels     map[Tone]*channel
	overrideHost string
	overridePort int
	activeTone   Tone

	subMu   sync.Mutex
	subs    map[int]chan ChannelStatus
	nextSub int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithHTTPClient replaces the HTTP client used for gateway and mirror
// requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithProber replaces the gateway prober.
func WithProber(p *discovery.Prober) Option {
	return func(e *Engine) { e.prober = p }
}

// WithMirrors replaces the pre-recorded mirror URLs for one tone.
func WithMirrors(tone Tone, urls ...string) Option {
	return func(e *Engine) { e.mirrors[tone] = urls }
}

// WithMirrorDelays overrides the pause before the first mirror attempt and
// the gap between mirrors.
func WithMirrorDelays(first, gap time.Duration) Option {
	return func(e *Engine) {
		e.mirrorFirstDelay = first
		e.mirrorGap = gap
	}
}

// WithMirrorHeaderTimeout overrides the bound on a mirror's connect and
// response headers. The clip body itself streams untimed.
func WithMirrorHeaderTimeout(t time.Duration) Option {
	return func(e *Engine) { e.mirrorHeaderTimeout = t }
}

// WithStallTimeout overrides the per-read stream stall bound.
func WithStallTimeout(t time.Duration) Option {
	return func(e *Engine) { e.stallTimeout = t }
}

// WithDispatchOptions appends options to the internally constructed
// dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(e *Engine) { e.dispatchOpts = append(e.dispatchOpts, opts...) }
}

// New creates an Engine playing through play. Call [Engine.Run] to start the
// worker.
func New(play *playback.Engine, opts ...Option) *Engine {
	e := &Engine{
		play:                play,
		client:              &http.Client{},
		log:                 slog.Default(),
		mirrors:             map[Tone][]string{},
		mirrorFirstDelay:    defaultMirrorFirstDelay,
		mirrorGap:           defaultMirrorGap,
		mirrorHeaderTimeout: defaultMirrorHeaderTimeout,
		stallTimeout:        defaultStallTimeout,
		candidatesFn:        discovery.Candidates,
		gatewayFn:           discovery.SystemGateway,
		queue:               make(chan Command, queueDepth),
		channels:            map[Tone]*channel{},
		subs:                map[int]chan ChannelStatus{},
	}
	for tone, urls := range defaultMirrors {
		e.mirrors[tone] = urls
	}
	for _, tone := range Tones {
		e.channels[tone] = &channel{state: StatePending, updated: time.Now()}
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.prober == nil {
		e.prober = discovery.NewProber(
			discovery.WithLogger(e.log),
			discovery.WithMetrics(e.metrics),
			discovery.WithHTTPClient(e.client),
		)
	}

	e.player = newStreamPlayer(play, e.stallTimeout)
	dispatchOpts := append([]dispatch.Option{
		dispatch.WithLogger(e.log),
		dispatch.WithMetrics(e.metrics),
		dispatch.WithHTTPClient(e.client),
		dispatch.WithAttemptRecorder(e.prober),
		dispatch.WithStatusFunc(e.liveStatus),
	}, e.dispatchOpts...)
	e.dispatcher = dispatch.New(e.player, dispatchOpts...)
	return e
}

// Run drains the command queue until ctx is cancelled. One request runs to
// full completion, fallback chain included, before the next is dequeued.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)
	e.log.Info("voice engine started", "queue_depth", queueDepth)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.queue:
			e.process(ctx, cmd)
		}
	}
}

// Running reports whether the worker loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Submit enqueues a command without blocking. It reports false when the
// queue was full and the command dropped; queued commands are unaffected.
func (e *Engine) Submit(cmd Command) bool {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Tone == "" {
		cmd.Tone = ToneDefault
	}
	if cmd.RateScale <= 0 {
		cmd.RateScale = 1.0
	}
	select {
	case e.queue <- cmd:
		return true
	default:
		e.metrics.QueueDrops.Add(context.Background(), 1)
		e.log.Debug("voice command dropped, queue full", "id", cmd.ID, "tone", cmd.Tone)
		return false
	}
}

// ---- fallback chain ----

func (e *Engine) process(ctx context.Context, cmd Command) {
	e.mu.Lock()
	e.activeTone = cmd.Tone
	e.mu.Unlock()

	log := e.log.With("id", cmd.ID, "tone", cmd.Tone, "quick", cmd.Quick)
	log.Info("processing voice command", "text", cmd.Text)

	hosts, forcePort := e.hostCandidates()
	if len(hosts) == 0 {
		e.fail(cmd, "GW_NONE")
		e.metrics.RecordTier(ctx, "gateway", "no_host")
		e.procedural(ctx, cmd, log)
		return
	}

	e.transition(cmd.Tone, StateDownloading, "MIOTTS", cmd.ID)

	start := time.Now()
	res, err := e.dispatcher.Speak(ctx, hosts, forcePort, dispatch.Request{
		Text: cmd.Text, Quick: cmd.Quick, RateScale: cmd.RateScale,
	})
	if err == nil {
		log.Info("gateway tier succeeded", "status", res.Status, "url", res.URL)
		e.metrics.RecordTier(ctx, "gateway", "ok")
		e.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
		e.succeed(cmd, res.Status)
		return
	}
	log.Debug("gateway tier failed", "err", err)
	e.metrics.RecordTier(ctx, "gateway", "fail")

	if !cmd.Quick && cmd.Tone == ToneDefault {
		if e.tryMirrors(ctx, cmd, log) {
			return
		}
	}

	e.fail(cmd, "M_FAIL")
	e.procedural(ctx, cmd, log)
}

// tryMirrors walks the pre-recorded clip URLs for the command's tone.
func (e *Engine) tryMirrors(ctx context.Context, cmd Command, log *slog.Logger) bool {
	urls := e.mirrors[cmd.Tone]
	for i, rawURL := range urls {
		delay := e.mirrorGap
		if i == 0 {
			delay = e.mirrorFirstDelay
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return false
		}

		e.setMessage(cmd.Tone, fmt.Sprintf("TRY%d", i+1))
		if err := e.playMirror(ctx, rawURL, cmd.RateScale); err != nil {
			log.Debug("mirror attempt failed", "url", rawURL, "err", err)
			continue
		}
		log.Info("mirror tier succeeded", "url", rawURL)
		e.metrics.RecordTier(ctx, "mirror", "ok")
		e.succeed(cmd, "STREAM")
		return true
	}
	e.metrics.RecordTier(ctx, "mirror", "fail")
	return false
}

// playMirror fetches one mirror URL and streams it through the player. A
// mirror that accepts the connection but never produces headers would
// otherwise wedge the single worker, so connect and headers are bounded by
// the mirror header timeout. The timer is disarmed once headers arrive; body
// reads run on ctx with the stall reader guarding per-read progress.
func (e *Engine) playMirror(ctx context.Context, rawURL string, rateScale float64) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	headerTimer := time.AfterFunc(e.mirrorHeaderTimeout, cancel)
	defer headerTimer.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("voice: building mirror request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("voice: mirror request: %w", err)
	}
	defer resp.Body.Close()
	headerTimer.Stop()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("voice: mirror status %d", resp.StatusCode)
	}
	return e.player.Play(ctx, resp.Body, rateScale)
}

// procedural plays the synthesized waveform, falling back to a plain tone.
// Neither marks the channel Downloaded; the network request already failed.
func (e *Engine) procedural(ctx context.Context, cmd Command, log *slog.Logger) {
	wave := synth.Cry()
	if cmd.Affect == AffectHappy {
		wave = synth.AltVoice()
	}
	if err := e.playWave(ctx, wave); err == nil {
		e.metrics.RecordTier(ctx, "synth", "ok")
		return
	}
	e.metrics.RecordTier(ctx, "synth", "fail")

	beep := synth.Tone(toneFreq, toneDuration)
	if err := e.playWave(ctx, beep); err != nil {
		log.Warn("tone fallback failed", "err", err)
		e.metrics.RecordTier(ctx, "tone", "fail")
		return
	}
	e.metrics.RecordTier(ctx, "tone", "ok")
}

func (e *Engine) playWave(ctx context.Context, wave []int16) error {
	return e.play.Play(ctx, bytes.NewReader(synth.Bytes(wave)), synth.StreamInfo(wave), 1.0)
}

// ---- discovery state ----

// hostCandidates rebuilds the candidate list for one pass. Only the override
// is sticky.
func (e *Engine) hostCandidates() ([]string, int) {
	e.mu.RLock()
	host, port := e.overrideHost, e.overridePort
	e.mu.RUnlock()

	var gw net.IP
	if host == "" {
		gw = e.gatewayFn()
	}
	return e.candidatesFn(host, gw), port
}

// SetGatewayOverride installs a sticky gateway override from a host,
// host:port, or URL. The literal "clear" (or an empty string) removes it.
// Returns the parsed host and port now in effect.
func (e *Engine) SetGatewayOverride(raw string) (string, int) {
	host, port := "", 0
	if raw != "" && raw != "clear" {
		host, port = discovery.ParseOverride(raw)
	}
	e.mu.Lock()
	e.overrideHost, e.overridePort = host, port
	e.mu.Unlock()
	e.log.Info("gateway override updated", "host", host, "port", port)
	return host, port
}

// GatewayOverride returns the sticky override currently in effect.
func (e *Engine) GatewayOverride() (string, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.overrideHost, e.overridePort
}

// ProbeGateway scans the current candidates for a live gateway and returns
// the diagnostic summary.
func (e *Engine) ProbeGateway(ctx context.Context, quick, verbose bool) (bool, string) {
	hosts, forcePort := e.hostCandidates()
	return e.prober.Probe(ctx, hosts, forcePort, quick, verbose)
}

// DiagLines returns the retained probe diagnostic lines, oldest first.
func (e *Engine) DiagLines() []string {
	return e.prober.DiagLines()
}

// LastAttempt returns the most recent gateway request record.
func (e *Engine) LastAttempt() discovery.Attempt {
	return e.prober.LastAttempt()
}

// ---- channel state ----

// Status returns a snapshot of one channel.
func (e *Engine) Status(tone Tone) (ChannelStatus, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.channels[tone]
	if !ok {
		return ChannelStatus{}, false
	}
	return e.snapshotLocked(tone, ch), true
}

// Statuses returns snapshots of all channels.
func (e *Engine) Statuses() []ChannelStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ChannelStatus, 0, len(Tones))
	for _, tone := range Tones {
		out = append(out, e.snapshotLocked(tone, e.channels[tone]))
	}
	return out
}

// Buffer returns a copy of the last decoded audio for a tone.
func (e *Engine) Buffer(tone Tone) ([]byte, wav.StreamInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.channels[tone]
	if !ok || len(ch.buffer) == 0 {
		return nil, wav.StreamInfo{}, false
	}
	cp := make([]byte, len(ch.buffer))
	copy(cp, ch.buffer)
	return cp, ch.info, true
}

func (e *Engine) snapshotLocked(tone Tone, ch *channel) ChannelStatus {
	return ChannelStatus{
		Tone:      tone,
		State:     ch.state,
		Message:   ch.message,
		BufferLen: len(ch.buffer),
		Loaded:    len(ch.buffer) > 0,
		Confirmed: ch.confirmed,
		RequestID: ch.requestID,
		UpdatedAt: ch.updated,
	}
}

func (e *Engine) transition(tone Tone, state State, message, requestID string) {
	e.mu.Lock()
	ch := e.channels[tone]
	ch.state = state
	ch.message = message
	ch.confirmed = false
	if requestID != "" {
		ch.requestID = requestID
	}
	ch.updated = time.Now()
	snap := e.snapshotLocked(tone, ch)
	e.mu.Unlock()
	e.broadcast(snap)
}

// setMessage updates the short status code without changing state.
func (e *Engine) setMessage(tone Tone, message string) {
	e.mu.Lock()
	ch := e.channels[tone]
	ch.message = message
	ch.updated = time.Now()
	snap := e.snapshotLocked(tone, ch)
	e.mu.Unlock()
	e.broadcast(snap)
}

// liveStatus receives in-flight codes from the dispatcher for the tone being
// processed.
func (e *Engine) liveStatus(code string) {
	e.mu.RLock()
	tone := e.activeTone
	e.mu.RUnlock()
	if tone != "" {
		e.setMessage(tone, code)
	}
}

// succeed marks the channel Downloaded and installs the captured audio. The
// confirmed flag carries the playback engine's drain outcome so operators can
// tell a verified play from one the sink merely accepted.
func (e *Engine) succeed(cmd Command, status string) {
	rec := e.player.takeLast()
	confirmed := e.play.Confirmed()
	e.mu.Lock()
	ch := e.channels[cmd.Tone]
	ch.state = StateDownloaded
	ch.message = status
	ch.confirmed = confirmed
	ch.requestID = cmd.ID
	if rec != nil {
		ch.buffer = rec.data
		ch.info = rec.info
	}
	ch.updated = time.Now()
	snap := e.snapshotLocked(cmd.Tone, ch)
	e.mu.Unlock()
	e.broadcast(snap)
}

// fail marks the channel Failed. A success status from this request is never
// replaced by the generic code.
func (e *Engine) fail(cmd Command, generic string) {
	e.mu.Lock()
	ch := e.channels[cmd.Tone]
	ch.state = StateFailed
	if !isSuccessStatus(ch.message) {
		ch.message = generic
	}
	ch.confirmed = false
	ch.requestID = cmd.ID
	ch.updated = time.Now()
	snap := e.snapshotLocked(cmd.Tone, ch)
	e.mu.Unlock()
	e.broadcast(snap)
}

// ---- status subscriptions ----

// Subscribe registers a status listener. Every channel transition is sent as
// a snapshot; slow listeners miss updates rather than block the engine. The
// returned cancel function must be called to release the subscription.
func (e *Engine) Subscribe() (<-chan ChannelStatus, func()) {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	ch := make(chan ChannelStatus, 8)
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
		e.subMu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) broadcast(snap ChannelStatus) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
