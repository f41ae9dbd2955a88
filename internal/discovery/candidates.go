// Package discovery locates the speech gateway on the local network. It
// builds the ordered host candidate list and probes candidates over HTTP
// until one answers. The candidate list is rebuilt on every call; only the
// operator override is sticky, and that lives with the caller.
package discovery

import (
	"net"
	"strconv"
	"strings"
)

// MaxCandidates bounds the host candidate list.
const MaxCandidates = 8

// fallbackHosts are tried after the override and the network gateway, in this
// order.
var fallbackHosts = [...]string{"miotts.local", "miotts", "audio.local", "localhost"}

// Ports is the ordered port list scanned per host when no port override is
// set.
var Ports = []int{8001, 7860, 80, 8080, 8000, 5000, 3000}

// Candidates builds the ordered, deduplicated host list for one discovery or
// dispatch pass. Precedence: override (when non-empty) suppresses the gateway
// address; the static fallback hosts always follow.
func Candidates(override string, gw net.IP) []string {
	out := make([]string, 0, MaxCandidates)
	add := func(h string) {
		if h == "" || len(out) >= MaxCandidates {
			return
		}
		for _, have := range out {
			if have == h {
				return
			}
		}
		out = append(out, h)
	}

	if override != "" {
		add(override)
	} else if gw != nil && !gw.IsUnspecified() {
		add(gw.String())
	}
	for _, h := range fallbackHosts {
		add(h)
	}
	return out
}

// ParseOverride normalises an operator-supplied gateway override. It accepts
// a bare host, host:port, or a full URL; the scheme, path, and fragment are
// stripped. Returns the host and the port (0 when none was given or it did
// not parse).
func ParseOverride(raw string) (host string, port int) {
	host = strings.TrimSpace(raw)
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, '#'); i >= 0 {
		host = host[:i]
	}

	if i := strings.LastIndexByte(host, ':'); i > 0 {
		if p, err := strconv.Atoi(host[i+1:]); err == nil && p > 0 && p <= 65535 {
			port = p
			host = host[:i]
		}
	}
	return strings.TrimSpace(host), port
}

// BaseURL renders the http:// base for a host and port, omitting the default
// port 80.
func BaseURL(host string, port int) string {
	if port == 80 {
		return "http://" + host
	}
	return "http://" + host + ":" + strconv.Itoa(port)
}
