// Package pool implements client-side endpoint selection for
// directory-protocol services.
//
// A Pool holds the shared, mutable list of candidate endpoints plus the
// selection policy (strategy, active-only filtering, exhaustion). Each client
// connection registers itself with Initialize and from then on gets its own
// cursor: a private snapshot of the endpoint list and an index into it.
// Mutating the pool (Add/Remove) refreshes every registered cursor in place,
// so concurrent connections never observe a half-updated list, while each
// connection's selection sequence stays consistent with its strategy.
//
// Strategy semantics per GetServer call:
//   - First:      index 0, or the first live endpoint scanning from 0
//   - RoundRobin: next index (circular), or the first live endpoint
//     scanning from the next index
//   - Random:     uniform random index, or random sampling without
//     replacement until a live endpoint turns up
package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"

	"dirpool/endpoint"
)

// DefaultRetryInterval paces repeated full scans when active-only filtering
// finds nothing live and the pool is not configured to exhaust.
const DefaultRetryInterval = 500 * time.Millisecond

// Pool is the shared registry of candidate endpoints.
// All methods are safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint.Endpoint
	states    map[string]*state // connection ID → that connection's cursor

	strategy   Strategy // immutable after New
	activeOnly bool
	exhaust    bool
	retryEvery time.Duration
	logger     log.Logger
}

// Option configures a Pool at construction time.
type Option func(*Pool) error

// WithEndpoints seeds the pool with an initial endpoint list, in order.
func WithEndpoints(eps ...*endpoint.Endpoint) Option {
	return func(p *Pool) error {
		for _, ep := range eps {
			if ep == nil {
				return fmt.Errorf("nil element in initial endpoints: %w", ErrInvalidEndpoint)
			}
		}
		p.endpoints = append(p.endpoints, eps...)
		return nil
	}
}

// WithAddrs seeds the pool from "host:port" address strings, in order.
func WithAddrs(addrs ...string) Option {
	return func(p *Pool) error {
		for _, addr := range addrs {
			ep, err := endpoint.Parse(addr)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
			}
			p.endpoints = append(p.endpoints, ep)
		}
		return nil
	}
}

// WithActiveOnly sets whether selection filters endpoints by liveness.
// Defaults to true.
func WithActiveOnly(active bool) Option {
	return func(p *Pool) error {
		p.activeOnly = active
		return nil
	}
}

// WithExhaust sets whether an active scan that finds no live endpoint fails
// immediately (true) or keeps retrying until the caller's context is done
// (false, the default).
func WithExhaust(exhaust bool) Option {
	return func(p *Pool) error {
		p.exhaust = exhaust
		return nil
	}
}

// WithRetryInterval sets the pause between full scan passes when no endpoint
// is live and the pool is not configured to exhaust.
func WithRetryInterval(d time.Duration) Option {
	return func(p *Pool) error {
		if d > 0 {
			p.retryEvery = d
		}
		return nil
	}
}

// WithLogger attaches a logger for selection and refresh events.
// Defaults to a nop logger.
func WithLogger(logger log.Logger) Option {
	return func(p *Pool) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// New creates a pool with the given strategy.
//
// Active-only filtering defaults to on and exhaustion to off; requesting
// exhaustion without active-only filtering is rejected, since exhausting a
// pool is only meaningful while checking for live endpoints.
func New(strategy Strategy, opts ...Option) (*Pool, error) {
	if !strategy.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, strategy)
	}
	p := &Pool{
		states:     make(map[string]*state),
		strategy:   strategy,
		activeOnly: true,
		retryEvery: DefaultRetryInterval,
		logger:     log.NewNopLogger(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.exhaust && !p.activeOnly {
		return nil, ErrInvalidPolicy
	}
	return p, nil
}

// Add appends a single endpoint and refreshes every registered cursor.
// Adding an endpoint equal to one already present is a no-op.
//
// Note the asymmetry with AddAll: single adds deduplicate, batch adds do not.
func (p *Pool) Add(ep *endpoint.Endpoint) error {
	if ep == nil {
		return fmt.Errorf("nil endpoint: %w", ErrInvalidEndpoint)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexOfLocked(ep) >= 0 {
		return nil
	}
	p.endpoints = append(p.endpoints, ep)
	p.refreshAllLocked()
	_ = p.logger.Log("msg", "endpoint added", "endpoint", ep.Addr(), "size", len(p.endpoints))
	return nil
}

// AddAddr parses a "host:port" address and adds the resulting endpoint.
func (p *Pool) AddAddr(addr string) error {
	ep, err := endpoint.Parse(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	return p.Add(ep)
}

// AddAll appends a sequence of endpoints in order, without checking for
// duplicates against the current members. Either every element is appended
// and a single refresh is broadcast, or the pool is left untouched.
func (p *Pool) AddAll(eps []*endpoint.Endpoint) error {
	for _, ep := range eps {
		if ep == nil {
			return fmt.Errorf("nil element in endpoint list: %w", ErrInvalidEndpoint)
		}
	}
	if len(eps) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = append(p.endpoints, eps...)
	p.refreshAllLocked()
	_ = p.logger.Log("msg", "endpoints added", "count", len(eps), "size", len(p.endpoints))
	return nil
}

// Remove deletes the first endpoint equal to ep, preserving the order of the
// rest, and refreshes every registered cursor.
func (p *Pool) Remove(ep *endpoint.Endpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexOfLocked(ep)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ep)
	}
	p.endpoints = append(p.endpoints[:i], p.endpoints[i+1:]...)
	p.refreshAllLocked()
	_ = p.logger.Log("msg", "endpoint removed", "endpoint", ep.Addr(), "size", len(p.endpoints))
	return nil
}

// Initialize registers a connection with the pool and builds its cursor:
// a snapshot of the current endpoint list with a uniformly random starting
// index. Initializing an already-registered connection replaces its cursor.
//
// An empty pool is rejected — there is no valid starting index to pick.
func (p *Pool) Initialize(connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.endpoints) == 0 {
		return fmt.Errorf("initialize connection %q: %w", connID, ErrEmptyPool)
	}
	p.states[connID] = newState(p)
	_ = p.logger.Log("msg", "connection initialized", "conn", connID, "strategy", p.strategy)
	return nil
}

// Release drops the cursor of a terminated connection.
// Releasing an unknown connection is a no-op.
func (p *Pool) Release(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, connID)
}

// GetServer computes and returns the next endpoint for the connection
// according to the pool's strategy.
//
// With active-only filtering the call probes endpoints and may block on
// network I/O; when additionally the pool does not exhaust and nothing is
// live, it keeps rescanning until an endpoint comes up or ctx is done.
func (p *Pool) GetServer(ctx context.Context, connID string) (*endpoint.Endpoint, error) {
	st, err := p.lookup(connID)
	if err != nil {
		return nil, err
	}
	ep, err := st.selectNext(ctx)
	if err != nil {
		_ = p.logger.Log("msg", "endpoint selection failed", "conn", connID, "err", err)
		return nil, err
	}
	_ = p.logger.Log("msg", "endpoint selected", "conn", connID, "endpoint", ep.Addr())
	return ep, nil
}

// GetCurrentServer returns the endpoint the connection's cursor currently
// points at, without advancing it.
func (p *Pool) GetCurrentServer(connID string) (*endpoint.Endpoint, error) {
	st, err := p.lookup(connID)
	if err != nil {
		return nil, err
	}
	return st.current()
}

// Len returns the number of endpoints currently in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Endpoints returns a copy of the current endpoint list, in pool order.
func (p *Pool) Endpoints() []*endpoint.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]*endpoint.Endpoint, len(p.endpoints))
	copy(cp, p.endpoints)
	return cp
}

// String renders the endpoint list and policy for diagnostics.
func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	addrs := make([]string, len(p.endpoints))
	for i, ep := range p.endpoints {
		addrs[i] = ep.Addr()
	}
	return fmt.Sprintf("pool(%s, active-only=%t, exhaust=%t): [%s]",
		p.strategy, p.activeOnly, p.exhaust, strings.Join(addrs, " "))
}

func (p *Pool) lookup(connID string) (*state, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[connID]
	if !ok {
		return nil, fmt.Errorf("connection %q: %w", connID, ErrUnregisteredConnection)
	}
	return st, nil
}

// indexOfLocked returns the index of the first endpoint equal to ep, or -1.
// Caller holds p.mu.
func (p *Pool) indexOfLocked(ep *endpoint.Endpoint) int {
	for i, cur := range p.endpoints {
		if cur.Equal(ep) {
			return i
		}
	}
	return -1
}

// refreshAllLocked rebuilds every registered cursor's snapshot after a
// mutation. Caller holds p.mu, so readers observe the new endpoint list and
// the refreshed cursors atomically.
func (p *Pool) refreshAllLocked() {
	for _, st := range p.states {
		st.refreshLocked()
	}
}
