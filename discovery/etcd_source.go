package discovery

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"

	"dirpool/endpoint"
)

const keyPrefix = "/dirpool/"

// EtcdSource announces and discovers directory-service endpoints in etcd,
// which acts as the shared phonebook for a directory-server cluster:
//
//	Key:   /dirpool/{cluster}/{addr}
//	Value: JSON-encoded announcement
//
// Announcements use TTL-based leases: if a server crashes, its lease expires
// and the entry is removed automatically, so clients stop selecting it.
type EtcdSource struct {
	client  *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	cluster string
}

type announcement struct {
	Addr string
}

// NewEtcdSource connects to etcd and scopes all keys to the given cluster
// name.
func NewEtcdSource(etcdEndpoints []string, cluster string) (*EtcdSource, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: etcdEndpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdSource{client: c, cluster: cluster}, nil
}

// Announce publishes an endpoint with a TTL lease and keeps the lease alive
// in the background. Called by directory servers (or an operator tool) to
// join the cluster's candidate set.
func (s *EtcdSource) Announce(ctx context.Context, ep *endpoint.Endpoint, ttl int64) error {
	lease, err := s.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}
	val, err := json.Marshal(announcement{Addr: ep.Addr()})
	if err != nil {
		return err
	}
	_, err = s.client.Put(ctx, s.key(ep.Addr()), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}
	ch, err := s.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	// Drain KeepAlive responses so the channel never fills up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Withdraw removes an endpoint's announcement. Called during graceful
// shutdown so clients stop selecting the endpoint immediately rather than
// waiting for the lease to expire.
func (s *EtcdSource) Withdraw(ctx context.Context, ep *endpoint.Endpoint) error {
	_, err := s.client.Delete(ctx, s.key(ep.Addr()))
	return err
}

// Endpoints returns all currently announced endpoints for the cluster.
// Entries whose addresses no longer parse are skipped.
func (s *EtcdSource) Endpoints(ctx context.Context) ([]*endpoint.Endpoint, error) {
	resp, err := s.client.Get(ctx, s.key(""), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	eps := make([]*endpoint.Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var a announcement
		if err := json.Unmarshal(kv.Value, &a); err != nil {
			continue
		}
		ep, err := endpoint.Parse(a.Addr)
		if err != nil {
			continue
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Watch monitors the cluster prefix and emits the full endpoint set on every
// change (announcements, withdrawals, lease expirations). The channel is
// closed when ctx is done.
func (s *EtcdSource) Watch(ctx context.Context) <-chan []*endpoint.Endpoint {
	ch := make(chan []*endpoint.Endpoint, 1)
	go func() {
		defer close(ch)
		watchChan := s.client.Watch(ctx, s.key(""), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full set on any change — simpler than folding
			// individual watch events into incremental updates
			eps, err := s.Endpoints(ctx)
			if err != nil {
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Close releases the etcd client connection.
func (s *EtcdSource) Close() error {
	return s.client.Close()
}

func (s *EtcdSource) key(addr string) string {
	return keyPrefix + s.cluster + "/" + addr
}
