// Package dispatch negotiates an unknown request contract with the speech
// gateway. It walks a fixed matrix of host x port x endpoint x payload-shape
// combinations, classifies each response by Content-Type, and routes the
// first playable audio stream into the player. The matrix tables live in
// tables.go; their iteration order is part of the contract.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/squawkbox/internal/discovery"
	"github.com/MrWong99/squawkbox/internal/observe"
)

var (
	// ErrNoHost reports an empty candidate list.
	ErrNoHost = errors.New("dispatch: no host candidates")

	// ErrExhausted reports that every combination failed.
	ErrExhausted = errors.New("dispatch: all gateway combinations failed")
)

const (
	defaultEndpointTimeout = 6 * time.Second
	defaultRetryDelay      = 140 * time.Millisecond
	defaultUserAgent       = "squawkbox/1.0"
	acceptHeader           = "audio/wav, audio/x-wav, audio/wave, application/json, text/plain, */*"

	// maxIndirectBody bounds how much of a JSON/text response is read when
	// hunting for an audio pointer.
	maxIndirectBody = 64 << 10
)

// Player consumes a live audio byte stream: parse, decode, and play it. The
// dispatcher never buffers the stream itself.
type Player interface {
	Play(ctx context.Context, body io.Reader, rateScale float64) error
}

// Request is one speech dispatch job.
type Request struct {
	Text      string
	Quick     bool
	RateScale float64
}

// Result describes a successful dispatch.
type Result struct {
	Status   string // MI_OK for direct audio, MI_OK_URL for indirect
	Indirect bool
	Host     string
	Port     int
	Endpoint string
	Variant  int
	URL      string // the played URL (follow-up URL when indirect)
}

// Dispatcher tries gateway combinations until one yields playable audio.
type Dispatcher struct {
	client     *http.Client
	player     Player
	timeout    time.Duration
	retryDelay time.Duration
	userAgent  string
	log        *slog.Logger
	metrics    *observe.Metrics
	statusFn   func(code string)
	recorder   AttemptRecorder
}

// AttemptRecorder receives a record of every gateway request for the shared
// last-attempt diagnostic.
type AttemptRecorder interface {
	RecordAttempt(discovery.Attempt)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout overrides the per-endpoint timeout. It bounds connect and
// response headers, never the audio stream itself.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithRetryDelay overrides the pause between failed attempts.
func WithRetryDelay(t time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelay = t }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithStatusFunc registers a callback receiving live short status codes
// (MI_404, MI_OK, ...) as attempts progress, for operator visibility.
func WithStatusFunc(fn func(code string)) Option {
	return func(d *Dispatcher) { d.statusFn = fn }
}

// WithAttemptRecorder shares the last-attempt diagnostic slot with the
// prober.
func WithAttemptRecorder(r AttemptRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// New creates a Dispatcher playing audio through player.
func New(player Player, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:     &http.Client{},
		player:     player,
		timeout:    defaultEndpointTimeout,
		retryDelay: defaultRetryDelay,
		userAgent:  defaultUserAgent,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Speak walks the combination matrix for req against hosts. forcePort
// restricts the port scan when > 0. Quick mode tries one endpoint and one
// payload variant, and gives up after the first host. The first combination
// that plays audio wins; every failed attempt is separated by the retry
// delay.
func (d *Dispatcher) Speak(ctx context.Context, hosts []string, forcePort int, req Request) (Result, error) {
	if len(hosts) == 0 {
		return Result{}, ErrNoHost
	}
	if req.RateScale <= 0 {
		req.RateScale = 1.0
	}

	endpointCount := len(endpoints)
	variants := variantCount
	if req.Quick {
		endpointCount = 1
		variants = 1
	}

	for _, host := range hosts {
		ports := discovery.Ports
		if forcePort > 0 {
			ports = []int{forcePort}
		}
		for _, port := range ports {
			base := discovery.BaseURL(host, port)
			for _, ep := range endpoints[:endpointCount] {
				for v := 0; v < variants; v++ {
					res, ok := d.attempt(ctx, base, host, port, ep, v, req)
					if ok {
						return res, nil
					}
					if err := d.pause(ctx); err != nil {
						return Result{}, err
					}
				}
			}
		}
		if req.Quick {
			// Quick mode trades coverage for latency: one host only.
			return Result{}, ErrExhausted
		}
	}
	return Result{}, ErrExhausted
}

// attempt issues one request and classifies the response. ok reports playable
// audio.
//
// The endpoint timeout bounds connect, request, and response headers. The
// timer is disarmed before audio starts streaming: a long clip is not an
// error, so body reads run on the caller's context with the player's per-read
// stall bound as the only progress guard.
func (d *Dispatcher) attempt(ctx context.Context, base, host string, port int, ep endpoint, variant int, req Request) (Result, bool) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	headerTimer := time.AfterFunc(d.timeout, cancel)
	defer headerTimer.Stop()

	var httpReq *http.Request
	var err error
	method := http.MethodGet
	if ep.post {
		method = http.MethodPost
		var body []byte
		body, err = payloadBody(req.Text, variant)
		if err == nil {
			httpReq, err = http.NewRequestWithContext(reqCtx, method, base+ep.path, bytes.NewReader(body))
			if httpReq != nil {
				httpReq.Header.Set("Content-Type", "application/json")
			}
		}
	} else {
		httpReq, err = http.NewRequestWithContext(reqCtx, method, base+ep.path+"?"+queryParams(req.Text, variant).Encode(), nil)
	}
	if err != nil {
		d.log.Debug("dispatch request build failed", "endpoint", ep.path, "err", err)
		d.record(method, host, port, ep.path, -1, 0, -1, "")
		d.count(ctx, ep.path, variant, "build_error")
		return Result{}, false
	}
	httpReq.Header.Set("User-Agent", d.userAgent)
	httpReq.Header.Set("Accept", acceptHeader)

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		d.log.Debug("dispatch request failed", "url", base+ep.path, "err", err)
		d.record(method, host, port, ep.path, -1, elapsed, -1, "")
		d.count(ctx, ep.path, variant, "transport_error")
		return Result{}, false
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	d.record(method, host, port, ep.path, resp.StatusCode, elapsed, resp.ContentLength, ct)

	if resp.StatusCode != http.StatusOK {
		d.log.Debug("dispatch http error", "url", base+ep.path, "status", resp.StatusCode)
		d.status(fmt.Sprintf("MI_%d", resp.StatusCode))
		d.count(ctx, ep.path, variant, "http_error")
		return Result{}, false
	}

	mediaType := ""
	if ct != "" {
		if mt, _, mtErr := mime.ParseMediaType(ct); mtErr == nil {
			mediaType = mt
		} else {
			mediaType = ct
		}
	}

	switch {
	case isWavLike(mediaType):
		headerTimer.Stop()
		if playErr := d.player.Play(ctx, resp.Body, req.RateScale); playErr != nil {
			d.log.Debug("dispatch playback failed", "url", base+ep.path, "err", playErr)
			d.count(ctx, ep.path, variant, "play_error")
			return Result{}, false
		}
		d.log.Info("gateway speech played", "url", base+ep.path, "variant", variant)
		d.status("MI_OK")
		d.count(ctx, ep.path, variant, "ok")
		return Result{
			Status: "MI_OK", Host: host, Port: port,
			Endpoint: ep.path, Variant: variant, URL: base + ep.path,
		}, true

	case strings.HasPrefix(mediaType, "audio/"):
		d.log.Debug("dispatch unsupported audio type", "content_type", mediaType)
		d.count(ctx, ep.path, variant, "unsupported_audio")
		return Result{}, false

	case strings.Contains(mediaType, "json") || mediaType == "text/plain":
		followURL, ok := d.audioPointer(resp.Body, base)
		if !ok {
			d.log.Debug("dispatch response had no audio pointer", "content_type", mediaType)
			d.count(ctx, ep.path, variant, "no_pointer")
			return Result{}, false
		}
		headerTimer.Stop()
		if playErr := d.playURL(ctx, followURL, req.RateScale); playErr != nil {
			d.log.Debug("dispatch indirect playback failed", "url", followURL, "err", playErr)
			d.count(ctx, ep.path, variant, "indirect_error")
			return Result{}, false
		}
		d.log.Info("gateway speech played via pointer", "url", followURL, "variant", variant)
		d.status("MI_OK_URL")
		d.count(ctx, ep.path, variant, "ok_url")
		return Result{
			Status: "MI_OK_URL", Indirect: true, Host: host, Port: port,
			Endpoint: ep.path, Variant: variant, URL: followURL,
		}, true

	default:
		d.count(ctx, ep.path, variant, "unrecognized")
		return Result{}, false
	}
}

// isWavLike reports whether the media type should be streamed straight into
// the WAV parser. Missing and generic binary types are optimistically treated
// as WAV; the parser rejects them cheaply if they are not.
func isWavLike(mediaType string) bool {
	switch mediaType {
	case "", "application/octet-stream", "audio/wav", "audio/x-wav", "audio/wave":
		return true
	}
	return false
}

// audioPointer extracts an audio location from a JSON/text body. Fields are
// checked in fixed order; the first string match wins. A root-relative path
// is resolved against base. Exactly one follow-up hop is allowed, so the
// returned URL is final.
func (d *Dispatcher) audioPointer(body io.Reader, base string) (string, bool) {
	raw, err := io.ReadAll(io.LimitReader(body, maxIndirectBody))
	if err != nil {
		return "", false
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", false
	}
	for _, key := range []string{"audio", "url", "path", "result"} {
		val, ok := fields[key].(string)
		if !ok || val == "" {
			continue
		}
		switch {
		case strings.HasPrefix(val, "http://"), strings.HasPrefix(val, "https://"):
			return val, true
		case strings.HasPrefix(val, "/"):
			return base + val, true
		default:
			d.log.Debug("dispatch audio pointer has unexpected shape", "value", val)
		}
	}
	return "", false
}

// playURL performs the single follow-up GET and streams the body into the
// player. As in attempt, the endpoint timeout covers only connect and
// response headers; the stream itself runs untimed.
func (d *Dispatcher) playURL(ctx context.Context, rawURL string, rateScale float64) error {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	headerTimer := time.AfterFunc(d.timeout, cancel)
	defer headerTimer.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("dispatch: building follow-up request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch: follow-up request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dispatch: follow-up status %d", resp.StatusCode)
	}
	headerTimer.Stop()
	return d.player.Play(ctx, resp.Body, rateScale)
}

// pause sleeps the retry delay, honouring cancellation.
func (d *Dispatcher) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.retryDelay):
		return nil
	}
}

func (d *Dispatcher) status(code string) {
	if d.statusFn != nil {
		d.statusFn(code)
	}
}

func (d *Dispatcher) record(method, host string, port int, path string, status int, elapsed time.Duration, length int64, ct string) {
	if d.recorder == nil {
		return
	}
	d.recorder.RecordAttempt(discovery.Attempt{
		Method: method, Host: host, Port: port, Path: path,
		Status: status, Elapsed: elapsed, Length: length,
		ContentType: ct, When: time.Now(),
	})
}

func (d *Dispatcher) count(ctx context.Context, endpoint string, variant int, outcome string) {
	d.metrics.DispatchAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Int("variant", variant),
		attribute.String("outcome", outcome),
	))
}
