package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"dirpool/endpoint"
)

// errNoneActive reports a scan pass that probed every endpoint in the
// snapshot without finding one live. Internal to the cursor: selectNext
// turns it into ErrExhausted or into a paced retry.
var errNoneActive = errors.New("no endpoint live in this pass")

// state is one connection's selection cursor: a private snapshot of the
// pool's endpoint list plus the index of the last endpoint handed out.
//
// The snapshot and index are guarded by the owning pool's mutex; a scan pass
// runs on a copied-out snapshot so probing never holds the lock and never
// blocks other connections. The pool rebuilds the snapshot in place
// (refreshLocked) whenever its endpoint list mutates.
type state struct {
	pool      *Pool
	snapshot  []*endpoint.Endpoint
	idx       int    // valid index into snapshot, or -1 when snapshot is empty
	gen       uint64 // bumped on every refresh, detects stale scans
	createdAt time.Time

	// advance is bound once at construction from the pool's strategy and
	// flags. It runs a single pass over an immutable snapshot copy and
	// returns the next index, or errNoneActive when nothing was live.
	advance func(ctx context.Context, snap []*endpoint.Endpoint, start int) (int, error)

	// retry paces repeated scan passes while waiting for an endpoint to
	// come up (active-only without exhaustion).
	retry *rate.Limiter
}

// newState builds the cursor for a freshly initialized connection.
// Caller holds pool.mu and guarantees a non-empty endpoint list.
func newState(p *Pool) *state {
	s := &state{
		pool:      p,
		createdAt: time.Now(),
		retry:     rate.NewLimiter(rate.Every(p.retryEvery), 1),
	}
	// burn the limiter's initial token so the first retry waits a full
	// interval instead of running back-to-back with the first pass
	s.retry.Allow()
	switch p.strategy {
	case First:
		s.advance = s.nextFirst
	case RoundRobin:
		s.advance = s.nextRoundRobin
	case Random:
		s.advance = s.nextRandom
	}
	s.refreshLocked()
	return s
}

// refreshLocked replaces the snapshot with the pool's current endpoint list
// and re-randomizes the cursor index. Caller holds pool.mu.
func (s *state) refreshLocked() {
	s.snapshot = make([]*endpoint.Endpoint, len(s.pool.endpoints))
	copy(s.snapshot, s.pool.endpoints)
	s.gen++
	if len(s.snapshot) == 0 {
		s.idx = -1
		return
	}
	s.idx = rand.Intn(len(s.snapshot))
}

// current returns the endpoint the cursor points at without advancing.
func (s *state) current() (*endpoint.Endpoint, error) {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	if s.idx < 0 || len(s.snapshot) == 0 {
		return nil, ErrEmptyPool
	}
	return s.snapshot[s.idx], nil
}

// selectNext advances the cursor per the pool's strategy and returns the
// endpoint it lands on.
//
// Each scan pass runs against a snapshot copied out under the lock, and the
// snapshot is re-read before every pass. A refresh delivered while a pass
// was probing is therefore picked up on the next pass, so a connection
// blocked on an all-down pool sees endpoints added mid-wait. The generation
// check discards an index computed against a list that was refreshed
// mid-pass.
func (s *state) selectNext(ctx context.Context) (*endpoint.Endpoint, error) {
	for {
		s.pool.mu.Lock()
		if s.idx < 0 || len(s.snapshot) == 0 {
			s.pool.mu.Unlock()
			return nil, ErrEmptyPool
		}
		snap := s.snapshot
		start := s.idx
		gen := s.gen
		s.pool.mu.Unlock()

		idx, err := s.advance(ctx, snap, start)
		if errors.Is(err, errNoneActive) {
			if s.pool.exhaust {
				return nil, fmt.Errorf("scanned %d endpoints: %w", len(snap), ErrExhausted)
			}
			if err := s.waitRetry(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.pool.mu.Lock()
		if gen == s.gen {
			s.idx = idx
			s.pool.mu.Unlock()
			return snap[idx], nil
		}
		s.pool.mu.Unlock()
	}
}

func (s *state) nextFirst(ctx context.Context, snap []*endpoint.Endpoint, _ int) (int, error) {
	if !s.pool.activeOnly {
		return 0, nil
	}
	return s.findActive(ctx, snap, 0)
}

func (s *state) nextRoundRobin(ctx context.Context, snap []*endpoint.Endpoint, start int) (int, error) {
	if !s.pool.activeOnly {
		return (start + 1) % len(snap), nil
	}
	return s.findActive(ctx, snap, start+1)
}

func (s *state) nextRandom(ctx context.Context, snap []*endpoint.Endpoint, _ int) (int, error) {
	if !s.pool.activeOnly {
		return rand.Intn(len(snap)), nil
	}
	return s.findActiveRandom(ctx, snap)
}

// findActive probes endpoints in increasing index order starting at start,
// wrapping past the end. One full pass: every endpoint is probed exactly
// once, liveness is never cached across passes.
func (s *state) findActive(ctx context.Context, snap []*endpoint.Endpoint, start int) (int, error) {
	n := len(snap)
	start %= n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if snap[idx].CheckAvailability(ctx) {
			return idx, nil
		}
	}
	return 0, errNoneActive
}

// findActiveRandom probes every endpoint exactly once in a uniformly random
// order (sampling without replacement) and returns the first live hit.
func (s *state) findActiveRandom(ctx context.Context, snap []*endpoint.Endpoint) (int, error) {
	for _, idx := range rand.Perm(len(snap)) {
		if snap[idx].CheckAvailability(ctx) {
			return idx, nil
		}
	}
	return 0, errNoneActive
}

// waitRetry blocks until the next scan slot. The limiter refuses to wait
// past the caller's deadline; there is nothing left to try before then, so
// in that case block until the context ends and report its error.
func (s *state) waitRetry(ctx context.Context) error {
	if err := s.retry.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			<-ctx.Done()
		}
		return ctx.Err()
	}
	return nil
}
