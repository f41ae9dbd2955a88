package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/squawkbox/internal/observe"
	"github.com/MrWong99/squawkbox/pkg/ring"
)

const (
	defaultProbeTimeout      = 2200 * time.Millisecond
	defaultQuickProbeTimeout = 750 * time.Millisecond
	defaultUserAgent         = "squawkbox/1.0"
	diagLineCount            = 16
)

// probePaths are tried per port in normal mode; quickProbePaths in quick
// mode. Order is a behavioural contract.
var (
	probePaths = []string{
		"/health",
		"/v1/health",
		"/v1/presets",
		"/v1/models",
		"/v1/voices",
		"/docs",
		"/openapi.json",
		"/",
	}
	quickProbePaths = []string{
		"/health",
		"/v1/presets",
		"/v1/health",
		"/v1/tts",
	}
)

// Attempt records the most recent probe or dispatch request for diagnostics.
type Attempt struct {
	Method      string
	Host        string
	Port        int
	Path        string
	Status      int // -1 when the request never got a response
	Elapsed     time.Duration
	Length      int64
	ContentType string
	When        time.Time
}

// Prober scans host candidates for a live gateway. It keeps a bounded ring
// of human-readable probe lines and the most recent attempt; both survive
// across probes until overwritten.
type Prober struct {
	client       *http.Client
	timeout      time.Duration
	quickTimeout time.Duration
	userAgent    string
	log          *slog.Logger
	metrics      *observe.Metrics

	mu   sync.Mutex
	last Attempt
	summ string // last probe summary line

	lines *ring.Ring[string]
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithHTTPClient replaces the HTTP client used for probe requests.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *Prober) { p.client = c }
}

// WithTimeouts overrides the normal and quick per-request probe timeouts.
func WithTimeouts(normal, quick time.Duration) ProberOption {
	return func(p *Prober) {
		p.timeout = normal
		p.quickTimeout = quick
	}
}

// WithLogger sets the logger for probe diagnostics.
func WithLogger(log *slog.Logger) ProberOption {
	return func(p *Prober) { p.log = log }
}

// WithMetrics sets the metrics instance used for probe counters.
func WithMetrics(m *observe.Metrics) ProberOption {
	return func(p *Prober) { p.metrics = m }
}

// WithUserAgent overrides the User-Agent header on probe requests.
func WithUserAgent(ua string) ProberOption {
	return func(p *Prober) { p.userAgent = ua }
}

// NewProber creates a Prober with the default timeouts.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		client:       &http.Client{},
		timeout:      defaultProbeTimeout,
		quickTimeout: defaultQuickProbeTimeout,
		userAgent:    defaultUserAgent,
		log:          slog.Default(),
		lines:        ring.New[string](diagLineCount),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Probe scans hosts in order for a live gateway. forcePort restricts the scan
// to one port when > 0. Each GET is individually timeout-bounded (shorter in
// quick mode). Any response at all, success or error status, marks the host
// as answering and ends its port scan; a 200 on any path ends the whole probe
// as success. The returned diagnostic joins one line per attempt, or
// "NO_HOST" / "NO_RESPONSE" when nothing was tried or nothing answered.
func (p *Prober) Probe(ctx context.Context, hosts []string, forcePort int, quick, verbose bool) (bool, string) {
	if len(hosts) == 0 {
		p.note("NO_HOST")
		return false, "NO_HOST"
	}

	timeout := p.timeout
	paths := probePaths
	if quick {
		timeout = p.quickTimeout
		paths = quickProbePaths
	}

	var joined []string
	answered := false
	for h, host := range hosts {
		ports := Ports
		if forcePort > 0 {
			ports = []int{forcePort}
		}
		for _, port := range ports {
			anyForHost := false
			for _, path := range paths {
				att := p.get(ctx, host, port, path, timeout)
				line := p.formatLine(att, verbose, h+1, len(hosts))
				joined = append(joined, line)
				p.lines.Append(line)

				if att.Status >= 0 {
					anyForHost = true
					answered = true
				}
				if att.Status == http.StatusOK {
					p.note(line)
					return true, strings.Join(joined, "; ")
				}
			}
			if anyForHost {
				break // host answers, assume fully probed
			}
		}
	}

	if !answered && len(joined) == 0 {
		p.note("NO_RESPONSE")
		return false, "NO_RESPONSE"
	}
	summary := strings.Join(joined, "; ")
	if !answered {
		summary = "NO_RESPONSE; " + summary
	}
	p.note(summary)
	return false, summary
}

// get issues one probe GET and records the attempt.
func (p *Prober) get(ctx context.Context, host string, port int, path string, timeout time.Duration) Attempt {
	att := Attempt{
		Method: http.MethodGet,
		Host:   host,
		Port:   port,
		Path:   path,
		Status: -1,
		Length: -1,
		When:   time.Now(),
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, BaseURL(host, port)+path, nil)
	if err == nil {
		req.Header.Set("User-Agent", p.userAgent)
		var resp *http.Response
		resp, err = p.client.Do(req)
		if err == nil {
			att.Status = resp.StatusCode
			att.Length = resp.ContentLength
			att.ContentType = resp.Header.Get("Content-Type")
			resp.Body.Close()
		}
	}
	att.Elapsed = time.Since(start)

	status := "error"
	if att.Status >= 0 {
		status = strconv.Itoa(att.Status)
	}
	p.metrics.ProbeAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("host", host),
		attribute.String("status", status),
	))
	p.log.Debug("gateway probe",
		"host", host, "port", port, "path", path,
		"status", att.Status, "elapsed", att.Elapsed, "err", err)

	p.mu.Lock()
	p.last = att
	p.mu.Unlock()
	return att
}

func (p *Prober) formatLine(att Attempt, verbose bool, attempt, total int) string {
	code := "ERR"
	if att.Status >= 0 {
		code = strconv.Itoa(att.Status)
	}
	ct := att.ContentType
	if ct == "" {
		ct = "none"
	}
	ms := att.Elapsed.Milliseconds()
	if verbose {
		return fmt.Sprintf("%s:%d%s -> %s, %s, ms=%d, attempt=%d/%d",
			att.Host, att.Port, att.Path, code, ct, ms, attempt, total)
	}
	return fmt.Sprintf("%s:%d%s %s ct=%s ms=%d", att.Host, att.Port, att.Path, code, ct, ms)
}

// note stores the probe summary.
func (p *Prober) note(s string) {
	p.mu.Lock()
	p.summ = s
	p.mu.Unlock()
}

// LastAttempt returns the most recent probe attempt record.
func (p *Prober) LastAttempt() Attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// LastSummary returns the summary line of the most recent probe.
func (p *Prober) LastSummary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summ
}

// DiagLines returns the retained probe lines, oldest first.
func (p *Prober) DiagLines() []string {
	return p.lines.Snapshot()
}

// RecordAttempt lets the dispatcher share the last-attempt slot, matching the
// single shared diagnostic record the status endpoints expose.
func (p *Prober) RecordAttempt(att Attempt) {
	p.mu.Lock()
	p.last = att
	p.mu.Unlock()
}
