// Package diag exposes the daemon's HTTP surface: health and readiness
// probes, the Prometheus scrape endpoint, speech submission, channel status,
// gateway controls, and a websocket feed of channel transitions.
package diag

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/squawkbox/internal/discovery"
	"github.com/MrWong99/squawkbox/internal/observe"
	"github.com/MrWong99/squawkbox/internal/voice"
	"github.com/MrWong99/squawkbox/pkg/audio"
)

// Server routes diagnostic and control requests to the voice engine.
type Server struct {
	engine      *voice.Engine
	log         *slog.Logger
	metrics     *observe.Metrics
	defaultRate float64
	router      chi.Router
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics bundle used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDefaultRate sets the playback speed used when a speak request does not
// carry its own rate_scale.
func WithDefaultRate(rate float64) Option {
	return func(s *Server) {
		if rate > 0 {
			s.defaultRate = rate
		}
	}
}

// New builds the diagnostic server around eng.
func New(eng *voice.Engine, opts ...Option) *Server {
	s := &Server{
		engine:      eng,
		log:         slog.Default(),
		defaultRate: 1.0,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	r := chi.NewRouter()
	r.Use(observe.Middleware(s.metrics))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/speak", s.handleSpeak)
		r.Get("/status", s.handleStatuses)
		r.Get("/status/{tone}", s.handleStatus)
		r.Get("/buffer/{tone}", s.handleBuffer)
		r.Post("/gateway/override", s.handleGatewayOverride)
		r.Post("/gateway/probe", s.handleGatewayProbe)
		r.Get("/diag", s.handleDiag)
		r.Get("/events", s.handleEvents)
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ---- health ----

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports ready only once the engine worker is draining the
// queue; before that a submitted command would sit unprocessed.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.Running() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "fail",
			"engine": "not running",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "engine": "running"})
}

// ---- speech ----

type speakRequest struct {
	Text      string  `json:"text"`
	Tone      string  `json:"tone,omitempty"`
	Quick     bool    `json:"quick,omitempty"`
	RateScale float64 `json:"rate_scale,omitempty"`
	Affect    string  `json:"affect,omitempty"`
}

type speakResponse struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("diag: decoding speak request: %w", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("diag: text is required"))
		return
	}
	tone, err := parseTone(req.Tone, voice.ToneDefault)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rate := req.RateScale
	if rate <= 0 {
		rate = s.defaultRate
	}
	cmd := voice.Command{
		ID:        uuid.NewString(),
		Text:      req.Text,
		Tone:      tone,
		Quick:     req.Quick,
		RateScale: rate,
		Affect:    voice.Affect(req.Affect),
	}
	if !s.engine.Submit(cmd) {
		// The engine drops silently; the HTTP surface is allowed to say why.
		writeJSON(w, http.StatusServiceUnavailable, speakResponse{Accepted: false})
		return
	}
	writeJSON(w, http.StatusAccepted, speakResponse{ID: cmd.ID, Accepted: true})
}

// ---- status ----

func (s *Server) handleStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Statuses())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tone, err := parseTone(chi.URLParam(r, "tone"), "")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, ok := s.engine.Status(tone)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("diag: no channel %q", tone))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleBuffer serves the most recently played clip as a downloadable WAV.
func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	tone, err := parseTone(chi.URLParam(r, "tone"), "")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pcm, info, ok := s.engine.Buffer(tone)
	if !ok || len(pcm) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("diag: no buffered audio for %q", tone))
		return
	}
	body := audio.EncodeWAV(pcm, info.SampleRate, info.Channels, info.BitsPerSample)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(tone)+".wav"))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ---- gateway ----

type overrideRequest struct {
	Host string `json:"host"`
}

type overrideResponse struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (s *Server) handleGatewayOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("diag: decoding override request: %w", err))
		return
	}
	host, port := s.engine.SetGatewayOverride(req.Host)
	writeJSON(w, http.StatusOK, overrideResponse{Host: host, Port: port})
}

type probeResponse struct {
	Found   bool   `json:"found"`
	Summary string `json:"summary"`
}

func (s *Server) handleGatewayProbe(w http.ResponseWriter, r *http.Request) {
	quick := r.URL.Query().Get("quick") == "true"
	verbose := r.URL.Query().Get("verbose") == "true"

	found, summary := s.engine.ProbeGateway(r.Context(), quick, verbose)
	writeJSON(w, http.StatusOK, probeResponse{Found: found, Summary: summary})
}

type diagResponse struct {
	Lines       []string          `json:"lines"`
	LastAttempt discovery.Attempt `json:"last_attempt"`
}

func (s *Server) handleDiag(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, diagResponse{
		Lines:       s.engine.DiagLines(),
		LastAttempt: s.engine.LastAttempt(),
	})
}

// ---- helpers ----

func parseTone(raw string, fallback voice.Tone) (voice.Tone, error) {
	if raw == "" {
		if fallback != "" {
			return fallback, nil
		}
		return "", errors.New("diag: tone is required")
	}
	t := voice.Tone(raw)
	for _, known := range voice.Tones {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("diag: unknown tone %q", raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("diag: encoding response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
