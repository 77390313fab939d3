package basp

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Node is the process-wide owner of this subsystem's state: its own
// identity, the multiplexer dispatching every registered connection,
// the proxy registry, metrics, and the set of live endpoint managers
// keyed by peer NodeID. It plays the role the teacher's Host plays for
// the actor runtime, narrowed to purely the networking concerns this
// subsystem owns — actor creation/scheduling is the sys ActorSystem
// collaborator's job, never Node's.
type Node struct {
	id  NodeID
	cfg config
	sys ActorSystem

	mux *Multiplexer
	reg *ProxyRegistry
	met *Metrics

	mu        sync.Mutex
	endpoints map[NodeID]*EndpointManager

	heartbeatSeq uint64

	cancel context.CancelFunc
}

// NewNode creates a Node with the given identity, actor system
// collaborator, and options. If id is the zero NodeID a fresh random
// one is generated.
func NewNode(id NodeID, sys ActorSystem, opts ...Option) *Node {
	if id.IsZero() {
		id = NewNodeID()
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	reg := NewProxyRegistry()
	met := newMetrics()
	met.proxyCountFn = reg.Count

	n := &Node{
		id:        id,
		cfg:       cfg,
		sys:       sys,
		mux:       NewMultiplexer(cfg.workerCount * 16),
		reg:       reg,
		met:       met,
		endpoints: make(map[NodeID]*EndpointManager),
	}
	return n
}

// ID returns this node's identity.
func (n *Node) ID() NodeID { return n.id }

// Proxies returns the process-wide proxy registry.
func (n *Node) Proxies() *ProxyRegistry { return n.reg }

// Metrics returns this node's metrics.
func (n *Node) Metrics() *Metrics { return n.met }

// Endpoint returns the endpoint manager for peer, if a handshaked
// connection to it currently exists.
func (n *Node) Endpoint(peer NodeID) (*EndpointManager, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[peer]
	return ep, ok
}

// Endpoints returns a snapshot of every currently live endpoint manager,
// keyed by peer NodeID.
func (n *Node) Endpoints() map[NodeID]*EndpointManager {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[NodeID]*EndpointManager, len(n.endpoints))
	for k, v := range n.endpoints {
		out[k] = v
	}
	return out
}

// Run starts the multiplexer's dispatch loop and the heartbeat/resolve-
// timeout clock; it blocks until ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	go n.clockLoop(ctx)
	n.mux.Run(ctx)
}

// Close cancels Run's context; it is idempotent-safe to call even if
// Run was never started.
func (n *Node) Close() {
	if n.cancel != nil {
		n.cancel()
	}
}

func (n *Node) clockLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.tick()
		}
	}
}

func (n *Node) tick() {
	n.heartbeatSeq++
	seq := n.heartbeatSeq

	n.mu.Lock()
	endpoints := make([]*EndpointManager, 0, len(n.endpoints))
	for _, ep := range n.endpoints {
		endpoints = append(endpoints, ep)
	}
	n.mu.Unlock()

	for _, ep := range endpoints {
		if err := ep.app.send(HeartbeatPayload{Sequence: seq}); err != nil {
			slog.Debug("basp: heartbeat send failed", "peer", ep.peer, "error", err)
			continue
		}
		if n.met != nil {
			n.met.HeartbeatsSent.Add(1)
		}
		ep.RemoveExpiredResolves()
	}
}

// wireInboundSocket sets up a SocketManager + Application for a freshly
// accepted socket, registers it with the multiplexer, and sends this
// node's handshake right away, so both ends of every connection emit
// one. The endpoint manager is created lazily once the peer's handshake
// names its NodeID (see Application.completeHandshake / endpointFor).
func (n *Node) wireInboundSocket(socket Socket, useFramer bool) *Application {
	app := n.wireSocket(socket, useFramer)
	if err := app.SendHandshake(); err != nil {
		slog.Debug("basp: inbound handshake send failed", "error", err)
	}
	return app
}

// wireOutboundSocket wires a dialed socket the same way as
// wireInboundSocket but does not send the handshake itself; the dialing
// transport does that (StreamTransport.Dial, DatagramTransport.Dial,
// DialWebSocket).
func (n *Node) wireOutboundSocket(socket Socket, useFramer bool) *Application {
	return n.wireSocket(socket, useFramer)
}

func (n *Node) wireSocket(socket Socket, useFramer bool) *Application {
	var app *Application
	sm := NewSocketManager(socket, nil, func(reason AbortReason) {
		if n.met != nil {
			n.met.ConnectionsClosed.Add(1)
		}
		app.Close(reason)
	})
	app = NewApplication(n, sm, useFramer)
	sm.onReadChunk = app.Consume
	n.mux.Register(sm, socket)
	return app
}

// endpointFor returns the (possibly newly created) endpoint manager for
// peer, bound to app for outbound sends.
func (n *Node) endpointFor(peer NodeID, app *Application) *EndpointManager {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ep, ok := n.endpoints[peer]; ok {
		return ep
	}
	ep := NewEndpointManager(n.id, peer, app, n.sys, n.reg, n.met, n.cfg.resolveTimeout)
	n.endpoints[peer] = ep
	return ep
}

// dropEndpoint removes peer's endpoint manager bookkeeping. Proxy
// erasure for addresses owned by that endpoint — the connection-loss
// half of down delivery — already happened inside EndpointManager.Close
// before Application.Close called this.
func (n *Node) dropEndpoint(peer NodeID) {
	n.mu.Lock()
	delete(n.endpoints, peer)
	n.mu.Unlock()
}
