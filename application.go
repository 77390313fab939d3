package basp

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Application is the BASP application-layer state machine bound to one
// socket manager: it drives the handshake, feeds inbound bytes through
// framing and the deserialization worker pool, and dispatches completed
// messages to an EndpointManager. Grounded in routing.go's
// HandleTransportMessage dispatch switch, generalized from the
// teacher's bespoke envelope format to the BASP wire format.
type Application struct {
	node *Node
	sm   *SocketManager

	// framer is nil for transports that already deliver one complete
	// message per Consume call (WebSocket, after RFC-6455 reassembly);
	// non-nil for stream transports that deliver arbitrary byte chunks.
	framer *FrameAssembler
	pool   *WorkerPool

	mu          sync.Mutex
	handshakeOK bool
	peer        NodeID
	endpoint    *EndpointManager

	outSeq atomic.Uint64
}

// NewApplication creates an Application for a freshly-accepted or
// freshly-dialed socket manager. useFramer selects implicit
// header-based framing (stream transports) vs. pre-framed delivery of
// one message per chunk (datagram and WebSocket transports).
func NewApplication(node *Node, sm *SocketManager, useFramer bool) *Application {
	app := &Application{node: node, sm: sm}
	if useFramer {
		app.framer = &FrameAssembler{}
	}
	app.pool = NewWorkerPool(node.cfg.workerCount, node.cfg.workerCount*4, app.handleDecoded)
	if node.met != nil {
		app.pool.reorderedCounter = &node.met.WorkerPoolReordered
	}
	return app
}

// Consume is the SocketManager's onReadChunk callback.
func (app *Application) Consume(chunk []byte) {
	if app.framer != nil {
		framed, err := app.framer.Feed(chunk)
		if err != nil {
			app.sm.Abort(fatalf("framing: %w", err))
			return
		}
		for _, f := range framed {
			app.pool.Submit(f)
		}
		return
	}

	// Pre-framed transport: chunk is exactly one header+payload message.
	if len(chunk) < HeaderSize {
		app.sm.Abort(fatalf("short pre-framed message: %d bytes", len(chunk)))
		return
	}
	h, err := DecodeHeader(chunk[:HeaderSize])
	if err != nil {
		app.sm.Abort(fatalf("header: %w", err))
		return
	}
	app.pool.Submit(Framed{Header: h, Body: chunk[HeaderSize:]})
}

// handleDecoded is the WorkerPool's ordered-release callback.
func (app *Application) handleDecoded(_ uint64, payload Payload, err error) {
	if err != nil {
		slog.Warn("basp: dropping malformed message", "error", err)
		return
	}
	if app.node.met != nil {
		app.node.met.MessagesReceived.Add(1)
	}

	app.mu.Lock()
	handshakeOK := app.handshakeOK
	app.mu.Unlock()

	if !handshakeOK {
		hp, ok := payload.(HandshakePayload)
		if !ok {
			app.sm.Abort(fatalf("%w", ErrHandshakeRequired))
			return
		}
		app.completeHandshake(hp)
		return
	}

	ep := app.endpointOrNil()
	if ep == nil {
		return
	}

	switch p := payload.(type) {
	case ActorMessagePayload:
		ep.handleActorMessage(p)
	case ResolveRequestPayload:
		ep.handleResolveRequest(p)
	case ResolveResponsePayload:
		ep.handleResolveResponse(p)
	case MonitorMessagePayload:
		ep.handleMonitorMessage(p)
	case DownMessagePayload:
		ep.handleDownMessage(p)
	case HeartbeatPayload:
		ep.handleHeartbeat(p)
	}
}

func (app *Application) endpointOrNil() *EndpointManager {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.endpoint
}

func (app *Application) completeHandshake(hp HandshakePayload) {
	if hp.Version != app.node.cfg.protocolVersion {
		app.sm.Abort(fatalf("%w: peer=%d local=%d", ErrHandshakeVersionMismatch, hp.Version, app.node.cfg.protocolVersion))
		return
	}
	if hp.Application != app.node.cfg.application {
		app.sm.Abort(fatalf("%w: peer=%q local=%q", ErrHandshakeAppMismatch, hp.Application, app.node.cfg.application))
		return
	}

	ep := app.node.endpointFor(hp.Node, app)

	app.mu.Lock()
	app.handshakeOK = true
	app.peer = hp.Node
	app.endpoint = ep
	app.mu.Unlock()

	if app.node.met != nil {
		app.node.met.HandshakesOK.Add(1)
	}
	slog.Info("basp: handshake complete", "peer", hp.Node, "application", hp.Application)
}

// SendHandshake transmits this node's handshake as the first message on
// a freshly established connection.
func (app *Application) SendHandshake() error {
	return app.send(HandshakePayload{
		Node:        app.node.id,
		Application: app.node.cfg.application,
		Version:     app.node.cfg.protocolVersion,
	})
}

// send encodes p and enqueues it on the underlying socket manager.
func (app *Application) send(p Payload) error {
	buf := EncodeMessage(nil, p)
	if app.node.met != nil {
		app.node.met.MessagesSent.Add(1)
		app.node.met.BytesSent.Add(int64(len(buf)))
	}
	return app.sm.Enqueue(buf)
}

// Close tears down the bound endpoint manager, if handshake completed,
// and all proxies this connection owned.
func (app *Application) Close(reason AbortReason) {
	app.mu.Lock()
	ep := app.endpoint
	peer := app.peer
	handshakeOK := app.handshakeOK
	app.mu.Unlock()

	app.pool.Close()

	if !handshakeOK || ep == nil {
		return
	}
	ep.Close(reason)
	app.node.dropEndpoint(peer)
}
