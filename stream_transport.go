package basp

import (
	"context"
	"log/slog"
	"net"
)

// streamSocket adapts a net.Conn to the Socket interface for TCP
// connections, grounded in transport.go's peer-per-goroutine read loop,
// generalized behind the Socket abstraction so the same Multiplexer
// dispatch code serves stream, datagram, and WebSocket transports alike.
type streamSocket struct {
	id   SocketID
	conn net.Conn
}

func newStreamSocket(conn net.Conn) *streamSocket {
	return &streamSocket{id: nextSocketID(), conn: conn}
}

func (s *streamSocket) ID() SocketID { return s.id }

func (s *streamSocket) ReadChunk() ([]byte, error) {
	buf := sharedPayloadCache.Get(4096)
	n, err := s.conn.Read(buf)
	if err != nil {
		sharedPayloadCache.Put(buf)
		return nil, err
	}
	chunk := make([]byte, n)
	copy(chunk, buf[:n])
	sharedPayloadCache.Put(buf)
	return chunk, nil
}

func (s *streamSocket) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *streamSocket) Close() error                { return s.conn.Close() }

// StreamTransport accepts and dials TCP connections, wiring each one
// into the node's multiplexer as a framed BASP application connection.
// Grounded in transport.go's NewTransport/acceptLoop/getOrConnect.
type StreamTransport struct {
	node     *Node
	listener net.Listener
	limiter  *acceptLimiter
}

// NewStreamTransport binds addr and returns a transport ready to Serve.
func NewStreamTransport(node *Node, addr string) (*StreamTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &StreamTransport{
		node:     node,
		listener: ln,
		limiter:  newAcceptLimiter(node.cfg.acceptRatePerSecond, node.cfg.acceptBurst),
	}, nil
}

// Addr reports the transport's bound local address.
func (t *StreamTransport) Addr() net.Addr { return t.listener.Addr() }

// Serve accepts connections until ctx is cancelled or the listener
// errors.
func (t *StreamTransport) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = t.listener.Close()
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		if !t.limiter.Allow() {
			if t.node.met != nil {
				t.node.met.ConnectionsRejected.Add(1)
			}
			_ = conn.Close()
			continue
		}

		t.acceptOne(conn)
	}
}

func (t *StreamTransport) acceptOne(conn net.Conn) {
	if t.node.met != nil {
		t.node.met.ConnectionsAccepted.Add(1)
	}
	socket := newStreamSocket(conn)
	t.node.wireInboundSocket(socket, true)
}

// Dial opens an outbound connection to addr and sends this node's
// handshake immediately.
func (t *StreamTransport) Dial(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	socket := newStreamSocket(conn)
	app := t.node.wireOutboundSocket(socket, true)
	if err := app.SendHandshake(); err != nil {
		return err
	}
	slog.Debug("basp: dialed peer", "addr", addr)
	return nil
}

// Close stops accepting new connections.
func (t *StreamTransport) Close() error {
	return t.listener.Close()
}
