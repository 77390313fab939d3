package basp

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// maxDatagramSize bounds a single UDP read; BASP messages that don't
// fit in one datagram are rejected rather than reassembled, since
// reliable delivery on datagram transports is explicitly out of scope.
const maxDatagramSize = 65507

// datagramSocket adapts one peer's traffic over a shared net.PacketConn
// to the Socket interface. Multiple datagramSockets share one
// underlying conn (there is exactly one per bound UDP port), grounded
// in other_examples/PeernetOfficial-kcp__multiplexer.go's
// incomingData/outgoingData channel shape rather than transport.go's
// one-conn-per-peer TCP model.
type datagramSocket struct {
	id        SocketID
	remote    net.Addr
	transport *DatagramTransport
	in        chan []byte
	closed    chan struct{}
}

func (s *datagramSocket) ID() SocketID { return s.id }

func (s *datagramSocket) ReadChunk() ([]byte, error) {
	select {
	case chunk, ok := <-s.in:
		if !ok {
			return nil, fmt.Errorf("basp: datagram peer removed")
		}
		return chunk, nil
	case <-s.closed:
		return nil, fmt.Errorf("basp: datagram socket closed")
	}
}

func (s *datagramSocket) Write(p []byte) (int, error) {
	if len(p) > maxDatagramSize {
		return 0, fmt.Errorf("basp: outbound message %d bytes exceeds datagram limit %d", len(p), maxDatagramSize)
	}
	return s.transport.conn.WriteTo(p, s.remote)
}

func (s *datagramSocket) Close() error {
	s.transport.removePeer(s.remote.String())
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

// DatagramTransport is the UDP transport: one bound net.PacketConn
// demultiplexed by source address into one datagramSocket per peer,
// each wired into the node exactly like a stream connection once its
// first datagram (expected to be a handshake) arrives.
type DatagramTransport struct {
	node *Node
	conn net.PacketConn

	mu    sync.Mutex
	peers map[string]*datagramSocket
}

// NewDatagramTransport binds addr for UDP traffic.
func NewDatagramTransport(node *Node, addr string) (*DatagramTransport, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return &DatagramTransport{
		node:  node,
		conn:  conn,
		peers: make(map[string]*datagramSocket),
	}, nil
}

// Addr reports the transport's bound local address.
func (t *DatagramTransport) Addr() net.Addr { return t.conn.LocalAddr() }

// Serve reads datagrams until ctx is cancelled or the socket errors.
func (t *DatagramTransport) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = t.conn.Close()
	}()

	for {
		buf := sharedPayloadCache.Get(maxDatagramSize)
		n, remote, err := t.conn.ReadFrom(buf)
		if err != nil {
			sharedPayloadCache.Put(buf)
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		sharedPayloadCache.Put(buf)

		sock, isNew := t.peerFor(remote)
		if isNew {
			t.node.wireInboundSocket(sock, false)
		}

		select {
		case sock.in <- chunk:
		default:
			// Peer's read channel is full; drop the datagram rather than
			// block the shared demux loop (no reliable delivery on
			// datagrams, per the Non-goal).
		}
	}
}

func (t *DatagramTransport) peerFor(remote net.Addr) (*datagramSocket, bool) {
	key := remote.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.peers[key]; ok {
		return s, false
	}
	s := &datagramSocket{
		id:        nextSocketID(),
		remote:    remote,
		transport: t,
		in:        make(chan []byte, 64),
		closed:    make(chan struct{}),
	}
	t.peers[key] = s
	return s, true
}

func (t *DatagramTransport) removePeer(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.peers[key]; ok {
		close(s.in)
		delete(t.peers, key)
	}
}

// Dial registers addr as a peer and sends this node's handshake as the
// first datagram.
func (t *DatagramTransport) Dial(addr string) error {
	remote, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	sock, _ := t.peerFor(remote)
	app := t.node.wireOutboundSocket(sock, false)
	return app.SendHandshake()
}

// Close stops the transport.
func (t *DatagramTransport) Close() error {
	return t.conn.Close()
}
