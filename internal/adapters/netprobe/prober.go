package netprobe

import (
	"fmt"
	"net"

	"github.com/codyde/sentryvibe-sub001/internal/ports"
)

// TCPProber implements ports.PortProber with a bind-then-close on the
// loopback interface. A successful listen proves no foreign process
// occupies the port right now.
type TCPProber struct {
	host string
}

// Verify interface compliance at compile time
var _ ports.PortProber = (*TCPProber)(nil)

// NewTCPProber creates a prober. An empty host binds loopback.
func NewTCPProber(host string) *TCPProber {
	if host == "" {
		host = "127.0.0.1"
	}
	return &TCPProber{host: host}
}

// Probe implements PortProber.Probe
func (p *TCPProber) Probe(port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort(p.host, fmt.Sprintf("%d", port)))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}
