package basp

import (
	"expvar"
	"strconv"
	"sync/atomic"
)

// metricsSeq generates unique expvar name prefixes across nodes created
// in the same process (common in tests, where several Node instances
// coexist).
var metricsSeq atomic.Int64

// Metrics tracks operational counters for a Node. All counters are
// lock-free (atomic int64) and published to expvar under a "basp.<n>."
// prefix for inspection via /debug/vars.
type Metrics struct {
	ConnectionsAccepted atomic.Int64
	ConnectionsRejected atomic.Int64 // rejected by the accept-rate limiter
	ConnectionsClosed   atomic.Int64

	HandshakesOK     atomic.Int64
	HandshakesFailed atomic.Int64

	MessagesSent     atomic.Int64
	MessagesReceived atomic.Int64
	BytesSent        atomic.Int64
	BytesReceived    atomic.Int64

	ResolveRequestsSent    atomic.Int64
	ResolveRequestsTimedOut atomic.Int64

	ProxiesCreated atomic.Int64
	ProxiesErased  atomic.Int64

	DownMessagesDelivered atomic.Int64
	HeartbeatsSent        atomic.Int64
	HeartbeatsMissed      atomic.Int64

	WorkerPoolReordered atomic.Int64 // completions that had to wait for an earlier sequence number

	// proxyCountFn reports the current number of live proxies.
	// Set by a ProxyRegistry at construction time.
	proxyCountFn func() int
}

// newMetrics creates a Metrics instance and publishes all counters to expvar.
func newMetrics() *Metrics {
	m := &Metrics{}

	seq := metricsSeq.Add(1)
	prefix := "basp." + strconv.FormatInt(seq, 10) + "."

	publish := func(name string, v expvar.Var) {
		expvar.Publish(prefix+name, v)
	}

	publish("connections_accepted", atomicVar(&m.ConnectionsAccepted))
	publish("connections_rejected", atomicVar(&m.ConnectionsRejected))
	publish("connections_closed", atomicVar(&m.ConnectionsClosed))
	publish("handshakes_ok", atomicVar(&m.HandshakesOK))
	publish("handshakes_failed", atomicVar(&m.HandshakesFailed))
	publish("messages_sent", atomicVar(&m.MessagesSent))
	publish("messages_received", atomicVar(&m.MessagesReceived))
	publish("bytes_sent", atomicVar(&m.BytesSent))
	publish("bytes_received", atomicVar(&m.BytesReceived))
	publish("resolve_requests_sent", atomicVar(&m.ResolveRequestsSent))
	publish("resolve_requests_timed_out", atomicVar(&m.ResolveRequestsTimedOut))
	publish("proxies_created", atomicVar(&m.ProxiesCreated))
	publish("proxies_erased", atomicVar(&m.ProxiesErased))
	publish("down_messages_delivered", atomicVar(&m.DownMessagesDelivered))
	publish("heartbeats_sent", atomicVar(&m.HeartbeatsSent))
	publish("heartbeats_missed", atomicVar(&m.HeartbeatsMissed))
	publish("worker_pool_reordered", atomicVar(&m.WorkerPoolReordered))
	publish("proxies_active", expvar.Func(func() any {
		if m.proxyCountFn != nil {
			return m.proxyCountFn()
		}
		return 0
	}))

	return m
}

func atomicVar(v *atomic.Int64) expvar.Var {
	return expvar.Func(func() any {
		return v.Load()
	})
}

// Snapshot returns all metric values as a map, suitable for JSON serialization
// (e.g. from an admin/diagnostics HTTP handler).
func (m *Metrics) Snapshot() map[string]int64 {
	snap := map[string]int64{
		"connections_accepted":       m.ConnectionsAccepted.Load(),
		"connections_rejected":       m.ConnectionsRejected.Load(),
		"connections_closed":         m.ConnectionsClosed.Load(),
		"handshakes_ok":              m.HandshakesOK.Load(),
		"handshakes_failed":          m.HandshakesFailed.Load(),
		"messages_sent":              m.MessagesSent.Load(),
		"messages_received":          m.MessagesReceived.Load(),
		"bytes_sent":                 m.BytesSent.Load(),
		"bytes_received":             m.BytesReceived.Load(),
		"resolve_requests_sent":      m.ResolveRequestsSent.Load(),
		"resolve_requests_timed_out": m.ResolveRequestsTimedOut.Load(),
		"proxies_created":            m.ProxiesCreated.Load(),
		"proxies_erased":             m.ProxiesErased.Load(),
		"down_messages_delivered":    m.DownMessagesDelivered.Load(),
		"heartbeats_sent":            m.HeartbeatsSent.Load(),
		"heartbeats_missed":          m.HeartbeatsMissed.Load(),
		"worker_pool_reordered":      m.WorkerPoolReordered.Load(),
	}
	if m.proxyCountFn != nil {
		snap["proxies_active"] = int64(m.proxyCountFn())
	}
	return snap
}
