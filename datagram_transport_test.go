package basp

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDatagramTransportDeliversOneMessagePerDatagram(t *testing.T) {
	serverSys := newFakeActorSystem()
	clientSys := newFakeActorSystem()
	serverNode := newTestNode(t, serverSys)
	clientNode := newTestNode(t, clientSys)

	serverTr, err := NewDatagramTransport(serverNode, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewDatagramTransport: %v", err)
	}
	t.Cleanup(func() { serverTr.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go serverTr.Serve(ctx)

	clientTr, err := NewDatagramTransport(clientNode, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewDatagramTransport: %v", err)
	}
	t.Cleanup(func() { clientTr.Close() })
	go clientTr.Serve(ctx)

	if err := clientTr.Dial(serverTr.Addr().String()); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return clientNode.Metrics().HandshakesOK.Load() >= 1 && serverNode.Metrics().HandshakesOK.Load() >= 1
	})

	clientNode.mu.Lock()
	var ep *EndpointManager
	for _, e := range clientNode.endpoints {
		ep = e
	}
	clientNode.mu.Unlock()
	if ep == nil {
		t.Fatal("client has no endpoint manager after handshake")
	}

	from := Address{Node: clientNode.ID(), Actor: 11}
	to := Address{Node: serverNode.ID(), Actor: 22}
	if err := ep.SendActorMessage(from, to, []byte("udp hello")); err != nil {
		t.Fatalf("SendActorMessage: %v", err)
	}

	waitFor(t, time.Second, func() bool { return serverSys.deliveredCount() >= 1 })
	got := serverSys.lastDelivered()
	if string(got.Body) != "udp hello" {
		t.Fatalf("Body = %q, want %q", got.Body, "udp hello")
	}
}

func TestDatagramSocketRejectsOversizedWrite(t *testing.T) {
	sys := newFakeActorSystem()
	node := newTestNode(t, sys)

	tr, err := NewDatagramTransport(node, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewDatagramTransport: %v", err)
	}
	t.Cleanup(func() { tr.Close() })

	remote, err := net.ResolveUDPAddr("udp", tr.Addr().String())
	if err != nil {
		t.Fatalf("resolve remote: %v", err)
	}
	sock, _ := tr.peerFor(remote)

	_, err = sock.Write(make([]byte, maxDatagramSize+1))
	if err == nil {
		t.Fatal("expected error writing a datagram larger than maxDatagramSize")
	}
}
