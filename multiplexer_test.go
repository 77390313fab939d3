package basp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSocket feeds a fixed sequence of chunks to ReadChunk, then returns
// errFakeSocketEOF forever.
type fakeSocket struct {
	id     SocketID
	mu     sync.Mutex
	chunks [][]byte
	closed bool
}

var errFakeSocketEOF = errors.New("fake socket exhausted")

func newFakeSocket(chunks ...[]byte) *fakeSocket {
	return &fakeSocket{id: nextSocketID(), chunks: chunks}
}

func (f *fakeSocket) ID() SocketID { return f.id }

func (f *fakeSocket) ReadChunk() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errFakeSocketEOF
	}
	if len(f.chunks) == 0 {
		f.closed = true
		return nil, errFakeSocketEOF
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c, nil
}

func (f *fakeSocket) Write(p []byte) (int, error) { return len(p), nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestMultiplexerDispatchesReadChunks(t *testing.T) {
	sock := newFakeSocket([]byte("a"), []byte("b"))

	var mu sync.Mutex
	var got [][]byte
	sm := NewSocketManager(sock, func(chunk []byte) {
		mu.Lock()
		got = append(got, chunk)
		mu.Unlock()
	}, func(AbortReason) {})

	mux := NewMultiplexer(16)
	mux.Register(sm, sock)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mux.PollOnce(ctx, false)
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || string(got[0]) != "a" || string(got[1]) != "b" {
		t.Fatalf("got = %v, want [a b]", got)
	}
}

func TestMultiplexerAbortsOnSocketError(t *testing.T) {
	sock := newFakeSocket() // exhausted immediately

	aborted := make(chan AbortReason, 1)
	sm := NewSocketManager(sock, func([]byte) {}, func(r AbortReason) {
		aborted <- r
	})

	mux := NewMultiplexer(16)
	mux.Register(sm, sock)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mux.PollOnce(ctx, false)
		select {
		case <-aborted:
			return
		default:
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for abort on socket read error")
}

func TestMultiplexerDeregisterRemovesManager(t *testing.T) {
	sock := newFakeSocket([]byte("x"))
	sm := NewSocketManager(sock, func([]byte) {}, func(AbortReason) {})

	mux := NewMultiplexer(16)
	mux.Register(sm, sock)
	if mux.NumSocketManagers() != 1 {
		t.Fatalf("NumSocketManagers() = %d, want 1", mux.NumSocketManagers())
	}
	mux.Deregister(sm.ID())
	if mux.NumSocketManagers() != 0 {
		t.Fatalf("NumSocketManagers() = %d, want 0", mux.NumSocketManagers())
	}
}

func TestMultiplexerRunAbortsRemainingManagersOnCancel(t *testing.T) {
	sock := newFakeSocket() // no chunks: its first ReadChunk already fails,
	// and whichever of that read error or Run's shutdown path wins, the
	// manager must be aborted by the time Run returns.
	sock.mu.Lock()
	sock.chunks = nil
	sock.mu.Unlock()

	aborted := make(chan struct{})
	sm := NewSocketManager(sock, func([]byte) {}, func(AbortReason) {
		close(aborted)
	})

	mux := NewMultiplexer(16)
	mux.Register(sm, sock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mux.Run(ctx)
		close(done)
	}()

	// the fakeSocket above returns errFakeSocketEOF immediately since it
	// has no chunks, which already aborts sm via the readPump's own error
	// path; Run should still observe ctx cancellation cleanly.
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}

	select {
	case <-aborted:
	default:
		t.Fatal("manager was not aborted by the time Run returned")
	}
}
