package discovery

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"
)

// SystemGateway returns the default-route gateway address of the host, or nil
// when it cannot be determined. The kernel routing table is authoritative; if
// it is unreadable (non-Linux, locked-down container) the outbound-interface
// heuristic is used instead.
func SystemGateway() net.IP {
	if gw := gatewayFromRoute("/proc/net/route"); gw != nil {
		return gw
	}
	return gatewayFromOutbound()
}

// gatewayFromRoute parses the default route's gateway out of a
// /proc/net/route style table. Addresses there are little-endian hex.
func gatewayFromRoute(path string) net.IP {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		v, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			continue
		}
		ip := net.IPv4(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		if !ip.IsUnspecified() {
			return ip
		}
	}
	return nil
}

// gatewayFromOutbound guesses the gateway as .1 on the outbound interface's
// subnet. No packets are sent; the dial only resolves the local address.
// Wrong on networks that are not /24, acceptable for a fallback candidate.
func gatewayFromOutbound() net.IP {
	conn, err := net.Dial("udp4", "192.0.2.1:9")
	if err != nil {
		return nil
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil
	}
	ip := addr.IP.To4()
	if ip == nil || ip.IsUnspecified() || ip.IsLoopback() {
		return nil
	}
	gw := make(net.IP, len(ip))
	copy(gw, ip)
	gw[3] = 1
	return gw
}
