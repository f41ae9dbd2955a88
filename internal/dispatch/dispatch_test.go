package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/squawkbox/internal/observe"
)

type stubPlayer struct {
	mu    sync.Mutex
	calls [][]byte
	rates []float64
	fail  error
}

func (p *stubPlayer) Play(_ context.Context, body io.Reader, rateScale float64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.calls = append(p.calls, data)
	p.rates = append(p.rates, rateScale)
	return nil
}

func (p *stubPlayer) played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.calls...)
}

func testDispatcher(t *testing.T, player Player, opts ...Option) *Dispatcher {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts = append([]Option{
		WithMetrics(m),
		WithRetryDelay(time.Millisecond),
		WithTimeout(2 * time.Second),
	}, opts...)
	return New(player, opts...)
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

func TestSpeak_NoHost(t *testing.T) {
	d := testDispatcher(t, &stubPlayer{})
	_, err := d.Speak(context.Background(), nil, 0, Request{Text: "hi"})
	if !errors.Is(err, ErrNoHost) {
		t.Fatalf("err = %v, want ErrNoHost", err)
	}
}

func TestSpeak_DirectWavSuccess(t *testing.T) {
	wavBytes := []byte("RIFF fake body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/tts" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		if payload["text"] != "hello" {
			t.Errorf("payload text = %v, want hello", payload["text"])
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wavBytes)
	}))
	defer srv.Close()

	player := &stubPlayer{}
	d := testDispatcher(t, player)
	res, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hello", Quick: true, RateScale: 1.5})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if res.Status != "MI_OK" || res.Indirect || res.Endpoint != "/v1/tts" || res.Variant != 0 {
		t.Errorf("result = %+v, want direct MI_OK on /v1/tts variant 0", res)
	}
	calls := player.played()
	if len(calls) != 1 || string(calls[0]) != string(wavBytes) {
		t.Errorf("player calls = %d, want 1 with the response body", len(calls))
	}
	if player.rates[0] != 1.5 {
		t.Errorf("rate scale = %v, want 1.5", player.rates[0])
	}
}

func TestSpeak_IndirectURLSingleFollowUp(t *testing.T) {
	var followUps atomic.Int64
	clip := []byte("RIFF clip")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/tts":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"url":"/clip.wav"}`))
		case "/clip.wav":
			followUps.Add(1)
			w.Header().Set("Content-Type", "audio/wav")
			w.Write(clip)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	player := &stubPlayer{}
	d := testDispatcher(t, player)
	res, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hello", Quick: true})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if res.Status != "MI_OK_URL" || !res.Indirect {
		t.Errorf("result = %+v, want indirect MI_OK_URL", res)
	}
	if !strings.HasSuffix(res.URL, "/clip.wav") {
		t.Errorf("result URL = %q, want the follow-up location", res.URL)
	}
	if n := followUps.Load(); n != 1 {
		t.Errorf("follow-up requests = %d, want exactly 1", n)
	}
	calls := player.played()
	if len(calls) != 1 || string(calls[0]) != string(clip) {
		t.Errorf("player got %d calls, want 1 with the clip body", len(calls))
	}
}

func TestSpeak_QuickModeStopsAfterFirstHost(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	// 127.0.0.2 answers nothing on the server's port; the live server is the
	// second host and must never be contacted in quick mode.
	hosts := []string{"127.0.0.2", "127.0.0.1"}
	player := &stubPlayer{}
	d := testDispatcher(t, player, WithTimeout(300*time.Millisecond))
	_, err := d.Speak(context.Background(), hosts, serverPort(t, srv), Request{Text: "hi", Quick: true})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("second host got %d requests, want 0 in quick mode", n)
	}
}

func TestSpeak_QuickModeSingleCombination(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := testDispatcher(t, &stubPlayer{})
	_, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hi", Quick: true})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("quick mode made %d requests, want 1", n)
	}
}

func TestSpeak_FullMatrixInNormalMode(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := testDispatcher(t, &stubPlayer{})
	_, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hi"})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	// 13 endpoints x 9 variants on the single forced port.
	if n := hits.Load(); n != 13*9 {
		t.Errorf("normal mode made %d requests, want %d", n, 13*9)
	}
}

// trickle writes body in fixed chunks with a pause between each, flushing so
// the client sees every chunk as it is written.
func trickle(t *testing.T, w http.ResponseWriter, body []byte, chunk int, gap time.Duration) {
	t.Helper()
	fl, ok := w.(http.Flusher)
	if !ok {
		t.Error("response writer does not flush")
		return
	}
	for off := 0; off < len(body); off += chunk {
		end := min(off+chunk, len(body))
		if _, err := w.Write(body[off:end]); err != nil {
			return
		}
		fl.Flush()
		time.Sleep(gap)
	}
}

func TestSpeak_SlowStreamOutlivesEndpointTimeout(t *testing.T) {
	// The whole clip takes several times the endpoint timeout to transfer,
	// but chunks keep arriving. The timeout bounds connect and headers only,
	// so the stream must play to completion.
	clip := make([]byte, 8192)
	for i := range clip {
		clip[i] = byte(i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		trickle(t, w, clip, 1024, 50*time.Millisecond)
	}))
	defer srv.Close()

	player := &stubPlayer{}
	d := testDispatcher(t, player, WithTimeout(100*time.Millisecond))
	res, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hi", Quick: true})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if res.Status != "MI_OK" {
		t.Errorf("status = %q, want MI_OK", res.Status)
	}
	calls := player.played()
	if len(calls) != 1 || len(calls[0]) != len(clip) {
		t.Fatalf("player got %d calls, want 1 with all %d bytes", len(calls), len(clip))
	}
}

func TestSpeak_SlowFollowUpStreamOutlivesEndpointTimeout(t *testing.T) {
	clip := make([]byte, 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/tts":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"audio":"/clip.wav"}`))
		case "/clip.wav":
			w.Header().Set("Content-Type", "audio/wav")
			trickle(t, w, clip, 512, 30*time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	player := &stubPlayer{}
	d := testDispatcher(t, player, WithTimeout(100*time.Millisecond))
	res, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hi", Quick: true})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if res.Status != "MI_OK_URL" {
		t.Errorf("status = %q, want MI_OK_URL", res.Status)
	}
	calls := player.played()
	if len(calls) != 1 || len(calls[0]) != len(clip) {
		t.Fatalf("player got %d calls, want 1 with all %d bytes", len(calls), len(clip))
	}
}

func TestSpeak_HeaderDelayStillBounded(t *testing.T) {
	// A server that accepts the connection but sits on the headers must not
	// hold an attempt past the endpoint timeout.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFF late"))
	}))
	defer srv.Close()

	player := &stubPlayer{}
	d := testDispatcher(t, player, WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hi", Quick: true})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("attempt took %v, want the header timeout to cut it off", elapsed)
	}
	if len(player.played()) != 0 {
		t.Error("player was called for a timed-out attempt")
	}
}

func TestSpeak_SkipsUnsupportedAudioType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3 junk"))
	}))
	defer srv.Close()

	player := &stubPlayer{}
	d := testDispatcher(t, player)
	_, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hi", Quick: true})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if len(player.played()) != 0 {
		t.Error("player was called for an unsupported audio type")
	}
}

func TestSpeak_StatusCallbackOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var codes []string
	d := testDispatcher(t, &stubPlayer{}, WithStatusFunc(func(code string) {
		mu.Lock()
		codes = append(codes, code)
		mu.Unlock()
	}))
	d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hi", Quick: true})

	mu.Lock()
	defer mu.Unlock()
	if len(codes) != 1 || codes[0] != "MI_503" {
		t.Errorf("status codes = %v, want [MI_503]", codes)
	}
}

func TestSpeak_OctetStreamTreatedAsWav(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("RIFF maybe"))
	}))
	defer srv.Close()

	player := &stubPlayer{}
	d := testDispatcher(t, player)
	res, err := d.Speak(context.Background(), []string{"127.0.0.1"}, serverPort(t, srv),
		Request{Text: "hi", Quick: true})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if res.Status != "MI_OK" {
		t.Errorf("status = %q, want MI_OK", res.Status)
	}
}

func TestPayloadBody_Variants(t *testing.T) {
	decode := func(t *testing.T, v int) map[string]any {
		t.Helper()
		raw, err := payloadBody("hi", v)
		if err != nil {
			t.Fatalf("payloadBody(%d): %v", v, err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("unmarshal variant %d: %v", v, err)
		}
		return m
	}

	m := decode(t, 0)
	ref := m["reference"].(map[string]any)
	if ref["preset_id"] != "jp_female" || ref["type"] != "preset" {
		t.Errorf("variant 0 reference = %v", ref)
	}
	if m["output"].(map[string]any)["format"] != "wav" {
		t.Errorf("variant 0 output = %v", m["output"])
	}

	m = decode(t, 3)
	if m["preset"] != "jp_female" || m["format"] != "wav" || m["text"] != "hi" {
		t.Errorf("variant 3 flat payload = %v", m)
	}

	m = decode(t, 6)
	if m["input"] != "hi" || m["model"] != "tts-1" || m["voice"] != "alloy" || m["response_format"] != "wav" {
		t.Errorf("variant 6 payload = %v", m)
	}

	m = decode(t, 8)
	llm := m["llm"].(map[string]any)
	if llm["temperature"] != 0.85 {
		t.Errorf("variant 8 llm = %v", llm)
	}

	// Variant 4 omits output entirely.
	if m = decode(t, 4); m["output"] != nil {
		t.Errorf("variant 4 should omit output, got %v", m["output"])
	}
}

func TestQueryParams_Variants(t *testing.T) {
	q := queryParams("hello world", 0)
	if q.Get("text") != "hello world" || q.Has("response_format") || q.Has("speaker") {
		t.Errorf("variant 0 params = %v, want text only", q)
	}
	if q = queryParams("x", 2); q.Get("response_format") != "wav" || q.Has("speaker") {
		t.Errorf("variant 2 params = %v", q)
	}
	if q = queryParams("x", 5); q.Get("speaker") != "0" || q.Get("voice") != "alloy" || q.Has("model") {
		t.Errorf("variant 5 params = %v", q)
	}
	if q = queryParams("x", 6); q.Get("model") != "tts-1" || q.Get("speaker") != "0" || q.Has("voice") {
		t.Errorf("variant 6 params = %v", q)
	}
	if q = queryParams("x", 8); q.Get("model") != "tts-1" || q.Get("response_format") != "wav" {
		t.Errorf("variant 8 params = %v", q)
	}
}
