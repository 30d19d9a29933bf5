// Package endpoint defines the candidate directory-service address used by
// the pool, together with its liveness probe.
//
// An Endpoint is identified by its logical address (host + port), not by
// instance identity: two Endpoint values with the same address are equal even
// if they carry different probers. The pool relies on this for deduplication
// on add and for lookup on remove.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is one candidate directory server.
//
// Prober may be set to override how liveness is checked (tests inject a stub
// here). When nil, CheckAvailability falls back to DefaultProber.
type Endpoint struct {
	Host   string
	Port   int
	Prober Prober
}

// New creates an endpoint for the given host and port.
func New(host string, port int) *Endpoint {
	return &Endpoint{Host: host, Port: port}
}

// Parse builds an endpoint from a "host:port" address string.
func Parse(addr string) (*Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint address %q: invalid port %q", addr, portStr)
	}
	if host == "" || port < 1 || port > 65535 {
		return nil, fmt.Errorf("parse endpoint address %q: host and port 1-65535 required", addr)
	}
	return &Endpoint{Host: host, Port: port}, nil
}

// Addr returns the joined "host:port" form.
func (e *Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Equal reports whether two endpoints refer to the same logical address.
// Host comparison is case-insensitive; the prober is not part of identity.
func (e *Endpoint) Equal(other *Endpoint) bool {
	if e == nil || other == nil {
		return e == other
	}
	return strings.EqualFold(e.Host, other.Host) && e.Port == other.Port
}

// CheckAvailability reports whether the endpoint is currently usable.
// The probe may perform network I/O and block until ctx is done.
func (e *Endpoint) CheckAvailability(ctx context.Context) bool {
	p := e.Prober
	if p == nil {
		p = DefaultProber
	}
	return p.Probe(ctx, e.Addr())
}

func (e *Endpoint) String() string {
	return e.Addr()
}
