package basp

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// pendingResolve is one outstanding resolve_request this endpoint has
// sent and is waiting on a resolve_response (or timeout) for. Grounded
// in the teacher's request.go Request/RequestManager shape, simplified
// to an unsharded map since contention here is per-peer rather than
// process-wide.
type pendingResolve struct {
	id      uint64
	key     string
	sentAt  int64
	resultC chan ResolveResult
}

// ResolveResult is delivered to whoever called EndpointManager.Resolve.
type ResolveResult struct {
	Addr  Address
	Found bool
	Err   error
}

// EndpointManager owns one remote endpoint's resolve-request table and
// locally-monitored-actor bookkeeping; outbound messages go straight to
// its Application's send, with no queue of its own. It is the
// socket-driven component spec.md §4.6/§4.7 describes, grounded in
// routing.go's pending-remote tracking and request.go's RequestManager.
type EndpointManager struct {
	self NodeID
	peer NodeID

	app *Application // used to send BASP messages back down the wire
	sys ActorSystem
	reg *ProxyRegistry
	met *Metrics

	mu              sync.Mutex
	resolveSeq      atomic.Uint64
	pending         map[uint64]*pendingResolve
	monitoredByPeer map[ActorID][]func() // cancel funcs for WatchLocal, keyed by the local actor the peer is watching
	ownedProxies    map[Address]struct{} // addresses on peer this endpoint has resolved a proxy for
	shells          map[ActorID]*ActorShell // non-scheduled local actors reachable through this endpoint

	resolveTimeout time.Duration

	closed atomic.Bool
}

// NewEndpointManager creates a manager for traffic to/from peer, bound
// to app for outbound sends.
func NewEndpointManager(self, peer NodeID, app *Application, sys ActorSystem, reg *ProxyRegistry, met *Metrics, resolveTimeout time.Duration) *EndpointManager {
	return &EndpointManager{
		self:            self,
		peer:            peer,
		app:             app,
		sys:             sys,
		reg:             reg,
		met:             met,
		pending:         make(map[uint64]*pendingResolve),
		monitoredByPeer: make(map[ActorID][]func()),
		ownedProxies:    make(map[Address]struct{}),
		shells:          make(map[ActorID]*ActorShell),
		resolveTimeout:  resolveTimeout,
	}
}

// RegisterShell binds a non-scheduled local actor's shell to this
// endpoint: inbound actor_message traffic addressed to shell.Ref() is
// delivered through its mailbox instead of the generic
// ActorSystem.Deliver collaborator path, and the shell is attached to
// this endpoint's socket manager so its blocked->active arming
// registers write interest on the right connection.
func (em *EndpointManager) RegisterShell(shell *ActorShell) {
	shell.Attach(em.app.sm)
	em.mu.Lock()
	em.shells[shell.Ref().Actor] = shell
	em.mu.Unlock()
}

// UnregisterShell removes a previously registered shell. Further
// actor_message traffic for actor falls back to ActorSystem.Deliver.
func (em *EndpointManager) UnregisterShell(actor ActorID) {
	em.mu.Lock()
	delete(em.shells, actor)
	em.mu.Unlock()
}

// SendActorMessage enqueues an outbound actor message to the peer.
func (em *EndpointManager) SendActorMessage(from, to Address, body []byte) error {
	return em.app.send(ActorMessagePayload{From: from, To: to, Body: body})
}

// Monitor registers a local watcher against watchee (which must live on
// this endpoint's peer), so a connection loss or an explicit
// down_message notifies the local actor system. The wire monitor_message
// is only sent when ProxyRegistry.Watch reports firstWatch, i.e. when
// watchee had no local observer yet (whether or not a proxy for it
// already existed) — once one is attached, the peer already knows to
// notify this node of watchee's termination, so a second, third, ...
// local watcher of the same remote actor registers locally without any
// further round-trip.
func (em *EndpointManager) Monitor(watcher ActorID, watchee Address) error {
	watcherAddr := Address{Node: em.self, Actor: watcher}
	firstWatch := em.reg.Watch(watchee, func(addr Address, reason DownReason) {
		em.sys.NotifyDown(watcher, addr, reason)
	})
	if !firstWatch {
		return nil
	}
	return em.app.send(MonitorMessagePayload{Watcher: watcherAddr, Watchee: watchee})
}

// Resolve asks the peer to resolve key, blocking (up to resolveTimeout)
// for its resolve_response. On success it registers a proxy for the
// resulting address before returning.
func (em *EndpointManager) Resolve(key string) ResolveResult {
	id := em.resolveSeq.Add(1)
	pr := &pendingResolve{id: id, key: key, sentAt: coarseNow.Load(), resultC: make(chan ResolveResult, 1)}

	em.mu.Lock()
	em.pending[id] = pr
	em.mu.Unlock()

	if em.met != nil {
		em.met.ResolveRequestsSent.Add(1)
	}

	if err := em.app.send(ResolveRequestPayload{RequestID: id, Key: key}); err != nil {
		em.mu.Lock()
		delete(em.pending, id)
		em.mu.Unlock()
		return ResolveResult{Err: err}
	}

	select {
	case res := <-pr.resultC:
		return res
	case <-time.After(em.resolveTimeout):
		em.mu.Lock()
		delete(em.pending, id)
		em.mu.Unlock()
		if em.met != nil {
			em.met.ResolveRequestsTimedOut.Add(1)
		}
		return ResolveResult{Err: ErrResolveTimeout}
	}
}

// RemoveExpiredResolves fails any pending resolve request older than
// resolveTimeout, driven by the endpoint's timeout clock tick. Ages are
// measured on the whole-second coarseNow clock, and resolveTimeout is
// truncated to whole seconds for the cutoff.
func (em *EndpointManager) RemoveExpiredResolves() int {
	cutoff := coarseNow.Load() - int64(em.resolveTimeout.Seconds())
	expired := 0
	em.mu.Lock()
	for id, pr := range em.pending {
		if pr.sentAt < cutoff {
			delete(em.pending, id)
			pr.resultC <- ResolveResult{Err: ErrResolveTimeout}
			expired++
		}
	}
	em.mu.Unlock()
	if expired > 0 && em.met != nil {
		em.met.ResolveRequestsTimedOut.Add(int64(expired))
	}
	return expired
}

// handleResolveRequest answers an inbound resolve_request by asking the
// local ActorSystem collaborator to resolve the key.
func (em *EndpointManager) handleResolveRequest(p ResolveRequestPayload) {
	actor, found := em.sys.Resolve(p.Key)
	_ = em.app.send(ResolveResponsePayload{RequestID: p.RequestID, Found: found, Actor: actor})
}

// handleResolveResponse completes a pending resolve_request, registering
// a proxy for the resolved address on success.
func (em *EndpointManager) handleResolveResponse(p ResolveResponsePayload) {
	em.mu.Lock()
	pr, ok := em.pending[p.RequestID]
	if ok {
		delete(em.pending, p.RequestID)
	}
	em.mu.Unlock()
	if !ok {
		return // late or duplicate response, nothing waits on it
	}

	if !p.Found {
		pr.resultC <- ResolveResult{Found: false}
		return
	}

	addr := Address{Node: em.peer, Actor: p.Actor}
	em.reg.GetOrPut(addr)
	em.mu.Lock()
	if em.ownedProxies != nil {
		em.ownedProxies[addr] = struct{}{}
	}
	em.mu.Unlock()
	if em.met != nil {
		em.met.ProxiesCreated.Add(1)
	}
	pr.resultC <- ResolveResult{Addr: addr, Found: true}
}

func (em *EndpointManager) handleActorMessage(p ActorMessagePayload) {
	em.mu.Lock()
	shell, ok := em.shells[p.To.Actor]
	em.mu.Unlock()

	if ok {
		if err := shell.Deliver(p.From, p.Body); err != nil {
			slog.Debug("basp: actor shell delivery failed", "actor", p.To.Actor, "error", err)
		}
	} else {
		em.sys.Deliver(p.From, p.To, p.Body)
	}

	if em.met != nil {
		em.met.MessagesReceived.Add(1)
	}
}

// handleMonitorMessage registers the peer's interest in a local actor's
// termination and actually runs the resulting down-notification functor
// when it fires — the spec requires this path be live, since the
// original BASP implementation left its equivalent attach callback
// commented out.
func (em *EndpointManager) handleMonitorMessage(p MonitorMessagePayload) {
	if !p.Watchee.IsLocal(em.self) {
		slog.Warn("monitor_message for non-local watchee", "watchee", p.Watchee)
		return
	}
	actor := p.Watchee.Actor
	watcher := p.Watcher
	cancel := em.sys.WatchLocal(actor, func(reason DownReason) {
		_ = em.app.send(DownMessagePayload{Watchee: p.Watchee, Reason: reason})
		if em.met != nil {
			em.met.DownMessagesDelivered.Add(1)
		}
		em.removeMonitor(actor, watcher)
	})

	em.mu.Lock()
	em.monitoredByPeer[actor] = append(em.monitoredByPeer[actor], cancel)
	em.mu.Unlock()
}

func (em *EndpointManager) removeMonitor(actor ActorID, _ Address) {
	em.mu.Lock()
	delete(em.monitoredByPeer, actor)
	em.mu.Unlock()
}

// handleDownMessage delivers a remote actor's termination notice to
// whichever local actor was watching it.
func (em *EndpointManager) handleDownMessage(p DownMessagePayload) {
	addr := Address{Node: em.peer, Actor: p.Watchee.Actor}
	em.reg.Erase(addr, p.Reason)
}

func (em *EndpointManager) handleHeartbeat(p HeartbeatPayload) {
	coarseNow.Store(time.Now().Unix()) // refreshes the coarse clock; missed heartbeats are not tracked
}

// Close tears down every local monitor registration this endpoint holds
// on behalf of the peer, fails any outstanding resolve requests, and
// erases every proxy this endpoint resolved — delivering a connection-
// lost down notification to anything watching one of them. It is
// called once, when the underlying connection is aborted.
func (em *EndpointManager) Close(reason AbortReason) {
	if !em.closed.CompareAndSwap(false, true) {
		return
	}

	em.mu.Lock()
	pending := em.pending
	em.pending = nil
	cancels := em.monitoredByPeer
	em.monitoredByPeer = nil
	owned := em.ownedProxies
	em.ownedProxies = nil
	shells := em.shells
	em.shells = nil
	em.mu.Unlock()

	for _, pr := range pending {
		pr.resultC <- ResolveResult{Err: reason}
	}
	for _, fns := range cancels {
		for _, cancel := range fns {
			cancel()
		}
	}
	for addr := range owned {
		em.reg.Erase(addr, DownReasonConnectionLost)
	}
	for _, shell := range shells {
		shell.Close()
	}
}
