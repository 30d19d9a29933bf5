// Package discovery feeds a pool from a dynamic endpoint source, so the
// candidate set follows directory servers as they announce themselves and
// disappear, instead of being fixed at construction.
package discovery

import (
	"context"

	"github.com/go-kit/log"

	"dirpool/endpoint"
	"dirpool/pool"
)

// Source publishes the current set of directory-service endpoints.
type Source interface {
	// Endpoints returns the currently announced endpoint set.
	Endpoints(ctx context.Context) ([]*endpoint.Endpoint, error)

	// Watch emits the full endpoint set whenever it changes.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context) <-chan []*endpoint.Endpoint
}

// Sync applies src's endpoint set to p and keeps applying updates until ctx
// is done or the source's watch channel closes.
//
// Membership is diffed by endpoint equality: endpoints the source dropped are
// removed from the pool, new ones are added. Each applied change refreshes
// the pool's cursors, so connections pick up membership changes on their next
// selection.
func Sync(ctx context.Context, src Source, p *pool.Pool, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	// start watching before the initial fetch so a change landing between
	// the two is emitted on the channel rather than silently missed
	ch := src.Watch(ctx)
	eps, err := src.Endpoints(ctx)
	if err != nil {
		return err
	}
	apply(eps, p, logger)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case eps, ok := <-ch:
			if !ok {
				return nil
			}
			apply(eps, p, logger)
		}
	}
}

func apply(eps []*endpoint.Endpoint, p *pool.Pool, logger log.Logger) {
	for _, cur := range p.Endpoints() {
		if !contains(eps, cur) {
			if err := p.Remove(cur); err != nil {
				_ = logger.Log("msg", "failed to remove withdrawn endpoint", "endpoint", cur.Addr(), "err", err)
			}
		}
	}
	for _, ep := range eps {
		// Add deduplicates, so endpoints already in the pool are no-ops
		if err := p.Add(ep); err != nil {
			_ = logger.Log("msg", "failed to add announced endpoint", "endpoint", ep.Addr(), "err", err)
		}
	}
}

func contains(eps []*endpoint.Endpoint, ep *endpoint.Endpoint) bool {
	for _, cur := range eps {
		if cur.Equal(ep) {
			return true
		}
	}
	return false
}
