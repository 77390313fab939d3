package basp

import "testing"

func TestMetricsSnapshotReflectsCounters(t *testing.T) {
	m := newMetrics()
	m.MessagesSent.Add(3)
	m.BytesSent.Add(128)
	m.HandshakesOK.Add(1)
	m.ResolveRequestsTimedOut.Add(2)

	snap := m.Snapshot()
	if snap["messages_sent"] != 3 {
		t.Errorf("messages_sent = %d, want 3", snap["messages_sent"])
	}
	if snap["bytes_sent"] != 128 {
		t.Errorf("bytes_sent = %d, want 128", snap["bytes_sent"])
	}
	if snap["handshakes_ok"] != 1 {
		t.Errorf("handshakes_ok = %d, want 1", snap["handshakes_ok"])
	}
	if snap["resolve_requests_timed_out"] != 2 {
		t.Errorf("resolve_requests_timed_out = %d, want 2", snap["resolve_requests_timed_out"])
	}
}

func TestMetricsProxyCountFnReflectsRegistry(t *testing.T) {
	reg := NewProxyRegistry()
	m := newMetrics()
	m.proxyCountFn = reg.Count

	if got := m.Snapshot()["proxies_active"]; got != 0 {
		t.Fatalf("proxies_active = %d, want 0", got)
	}

	reg.GetOrPut(Address{Node: NewNodeID(), Actor: 1})
	reg.GetOrPut(Address{Node: NewNodeID(), Actor: 2})

	if got := m.Snapshot()["proxies_active"]; got != 2 {
		t.Fatalf("proxies_active = %d, want 2", got)
	}
}

func TestMetricsInstancesGetDistinctExpvarPrefixes(t *testing.T) {
	// Each newMetrics call must publish under a distinct expvar prefix so
	// multiple Node instances in the same process (common in tests) don't
	// collide on /debug/vars names.
	before := metricsSeq.Load()
	m1 := newMetrics()
	m2 := newMetrics()
	after := metricsSeq.Load()

	if after-before != 2 {
		t.Fatalf("metricsSeq advanced by %d, want 2", after-before)
	}
	if m1 == m2 {
		t.Fatal("expected distinct Metrics instances")
	}
}
