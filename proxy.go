package basp

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const proxyShardCount = 64

// DownObserver is notified when a watched proxy is erased.
type DownObserver func(addr Address, reason DownReason)

// proxyEntry is the bookkeeping a ProxyRegistry keeps for one remote
// address: the set of local observers (monitors) that asked to be told
// when it goes down.
type proxyEntry struct {
	addr      Address
	observers []DownObserver
}

type proxyShard struct {
	mu sync.Mutex
	m  map[Address]*proxyEntry
}

// ProxyRegistry is the process-wide, thread-safe (node_id, actor_id) ->
// proxy handle map. It is grounded on the teacher's ClusterDirectory and
// sharded-map pattern, repurposed from cluster-wide placement to local
// proxy bookkeeping for remote addresses this node has seen.
type ProxyRegistry struct {
	shards [proxyShardCount]proxyShard
	count  atomic.Int64
}

// NewProxyRegistry creates an empty registry.
func NewProxyRegistry() *ProxyRegistry {
	r := &ProxyRegistry{}
	for i := range r.shards {
		r.shards[i].m = make(map[Address]*proxyEntry)
	}
	return r
}

func (r *ProxyRegistry) shard(addr Address) *proxyShard {
	h := fnv.New64a()
	h.Write(addr.Node[:])
	var ab [8]byte
	for i := 0; i < 8; i++ {
		ab[i] = byte(addr.Actor >> (56 - 8*i))
	}
	h.Write(ab[:])
	return &r.shards[h.Sum64()&(proxyShardCount-1)]
}

// GetOrPut returns the existing proxy entry for addr, or creates one.
// created reports whether this call created the entry.
func (r *ProxyRegistry) GetOrPut(addr Address) (created bool) {
	s := r.shard(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[addr]; ok {
		return false
	}
	s.m[addr] = &proxyEntry{addr: addr}
	r.count.Add(1)
	return true
}

// Has reports whether addr currently has a live proxy entry.
func (r *ProxyRegistry) Has(addr Address) bool {
	s := r.shard(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[addr]
	return ok
}

// Watch registers obs to be called when addr's proxy is erased. It is
// idempotent with GetOrPut: calling Watch on an address with no existing
// proxy creates one. firstWatch reports whether addr had no observers
// before this call — true both the first time anything watches a brand
// new address and the first time anything watches an address that
// already had a proxy (e.g. from a prior GetOrPut/Resolve) but no
// watcher yet. Callers that drive a wire protocol off proxy creation
// (see EndpointManager.Monitor) use this to send their one-time message
// exactly once per address, no matter how many local watchers pile on
// afterward.
func (r *ProxyRegistry) Watch(addr Address, obs DownObserver) (firstWatch bool) {
	s := r.shard(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[addr]
	if !ok {
		e = &proxyEntry{addr: addr}
		s.m[addr] = e
		r.count.Add(1)
	}
	firstWatch = len(e.observers) == 0
	e.observers = append(e.observers, obs)
	return firstWatch
}

// Erase removes addr's proxy entry and notifies every registered
// observer with reason. It is a no-op if addr has no entry (erase is
// idempotent, matching the get_or_put/erase pairing the spec requires).
func (r *ProxyRegistry) Erase(addr Address, reason DownReason) {
	s := r.shard(addr)
	s.mu.Lock()
	e, ok := s.m[addr]
	if ok {
		delete(s.m, addr)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	r.count.Add(-1)
	for _, obs := range e.observers {
		obs(addr, reason)
	}
}

// Count returns the number of live proxy entries, used as the
// expvar-backed proxies_active gauge.
func (r *ProxyRegistry) Count() int {
	return int(r.count.Load())
}
