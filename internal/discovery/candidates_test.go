package discovery

import (
	"net"
	"testing"
)

func TestCandidates_OverrideFirstSuppressesGateway(t *testing.T) {
	got := Candidates("192.168.11.12", net.IPv4(192, 168, 11, 1))
	want := []string{"192.168.11.12", "miotts.local", "miotts", "audio.local", "localhost"}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCandidates_GatewayWhenNoOverride(t *testing.T) {
	got := Candidates("", net.IPv4(10, 0, 0, 1))
	if got[0] != "10.0.0.1" {
		t.Errorf("first candidate = %q, want gateway address", got[0])
	}
}

func TestCandidates_ZeroGatewaySkipped(t *testing.T) {
	got := Candidates("", net.IPv4zero)
	if got[0] != "miotts.local" {
		t.Errorf("first candidate = %q, want first static fallback", got[0])
	}
	if got2 := Candidates("", nil); got2[0] != "miotts.local" {
		t.Errorf("nil gateway: first candidate = %q, want first static fallback", got2[0])
	}
}

func TestCandidates_DedupAndBound(t *testing.T) {
	// Override equal to a static fallback must not appear twice.
	got := Candidates("localhost", nil)
	seen := map[string]bool{}
	for _, h := range got {
		if seen[h] {
			t.Errorf("duplicate candidate %q", h)
		}
		seen[h] = true
	}
	if len(got) > MaxCandidates {
		t.Errorf("candidate count = %d, want <= %d", len(got), MaxCandidates)
	}
}

func TestParseOverride(t *testing.T) {
	cases := []struct {
		in       string
		wantHost string
		wantPort int
	}{
		{"192.168.11.12:8001", "192.168.11.12", 8001},
		{"http://miotts.local:7860/v1/tts", "miotts.local", 7860},
		{"https://audio.local/", "audio.local", 0},
		{"  miotts  ", "miotts", 0},
		{"miotts:notaport", "miotts:notaport", 0},
		{"host:8001#frag", "host", 8001},
		{"", "", 0},
	}
	for _, tc := range cases {
		host, port := ParseOverride(tc.in)
		if host != tc.wantHost || port != tc.wantPort {
			t.Errorf("ParseOverride(%q) = (%q, %d), want (%q, %d)",
				tc.in, host, port, tc.wantHost, tc.wantPort)
		}
	}
}

func TestBaseURL(t *testing.T) {
	if got := BaseURL("miotts", 80); got != "http://miotts" {
		t.Errorf("port 80 base = %q, want no port suffix", got)
	}
	if got := BaseURL("miotts", 8001); got != "http://miotts:8001" {
		t.Errorf("base = %q, want http://miotts:8001", got)
	}
}
