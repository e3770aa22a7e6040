package common

import (
	"net"
	"os"
)

// UnknownHost is recorded on execution logs when identity lookup fails.
const UnknownHost = "unknown"

// ServerIdentity resolves the host's primary address and hostname for
// execution log attribution. Lookup failures degrade to "unknown" rather
// than failing the run.
func ServerIdentity() (ip string, name string) {
	ip = UnknownHost
	name = UnknownHost

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		name = hostname
	}

	// The connection is never established; the kernel just picks the
	// outbound interface whose address we report.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err == nil {
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			ip = addr.IP.String()
		}
		conn.Close()
		return ip, name
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ip, name
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			ip = ipNet.IP.String()
			break
		}
	}
	return ip, name
}
