package basp

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketTransport serves BASP over WebSocket. The HTTP Upgrade
// handshake itself is delegated to gorilla/websocket's Upgrader/Dialer;
// once upgraded, the raw net.Conn is handed to wsSocket for hand-rolled
// RFC-6455 frame I/O, so the framing layer above the transport can sit
// in this package's own layered pipeline rather than behind gorilla's
// message API. Grounded in kephasnet's websocket_client.go upgrade
// path.
type WebSocketTransport struct {
	node     *Node
	upgrader websocket.Upgrader
	listener net.Listener
	server   *http.Server
}

// NewWebSocketTransport binds addr and returns a transport that will
// serve BASP-over-WebSocket connections at path once Serve is called.
func NewWebSocketTransport(node *Node, addr, path string) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	t := &WebSocketTransport{
		node:     node,
		listener: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin checking belongs to the authentication/authorization
			// layer, explicitly out of scope here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, t.handleUpgrade)
	t.server = &http.Server{Handler: mux}
	return t, nil
}

// Addr reports the transport's bound local address.
func (t *WebSocketTransport) Addr() net.Addr { return t.listener.Addr() }

func (t *WebSocketTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := wsConn.UnderlyingConn()
	socket := newWSSocket(conn, false)
	t.node.wireInboundSocket(socket, false)
}

// Serve accepts connections on the transport's bound listener until ctx
// is cancelled.
func (t *WebSocketTransport) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	err := t.server.Serve(t.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops the HTTP server.
func (t *WebSocketTransport) Close() error {
	return t.server.Close()
}

// DialWebSocket opens an outbound WebSocket connection to url (e.g.
// "ws://host:port/basp") and sends this node's handshake immediately.
func DialWebSocket(ctx context.Context, node *Node, url string) error {
	dialer := websocket.Dialer{}
	wsConn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	conn := wsConn.UnderlyingConn()
	socket := newWSSocket(conn, true)
	app := node.wireOutboundSocket(socket, false)
	return app.SendHandshake()
}
