package endpoint

import (
	"context"
	"net"
	"time"
)

// Prober is the liveness-check capability attached to an endpoint.
type Prober interface {
	// Probe reports whether addr is currently reachable. It may perform
	// network I/O; implementations must respect ctx cancellation.
	Probe(ctx context.Context, addr string) bool
}

// ProberFunc adapts a plain function to the Prober interface.
type ProberFunc func(ctx context.Context, addr string) bool

func (f ProberFunc) Probe(ctx context.Context, addr string) bool {
	return f(ctx, addr)
}

// DefaultProbeTimeout bounds a single dial attempt of the default prober.
const DefaultProbeTimeout = 5 * time.Second

// DefaultProber is used by endpoints that carry no explicit prober.
var DefaultProber Prober = DialProber{Timeout: DefaultProbeTimeout}

// DialProber checks liveness by opening and immediately closing a TCP
// connection to the endpoint. This mirrors what the directory client does
// on connect, without speaking the protocol.
type DialProber struct {
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
