package basp

import (
	"sync"
	"sync/atomic"
)

// SocketManager owns one Socket's lifetime: it receives dispatched read
// events from a Multiplexer, drives writes on its own goroutine (paired
// with the teacher's peerWriter/peerFlusher split in transport.go rather
// than folding writes into the multiplexer's single dispatch thread),
// and records an AbortReason once the socket faults. SocketManager is
// reference-counted: Abort is idempotent and safe to call from both the
// read and write sides concurrently.
type SocketManager struct {
	socket Socket

	mu     sync.Mutex
	closed bool
	abort  AbortReason

	refs atomic.Int32

	// onReadChunk is invoked by the multiplexer's dispatch goroutine for
	// every chunk read from socket. It must not block.
	onReadChunk func(chunk []byte)
	// onAbort is invoked exactly once when the socket manager closes,
	// from whichever side (read or write) observed the fault first.
	onAbort func(reason AbortReason)

	writeCh chan []byte
	done    chan struct{}

	// writeRegistrations counts RegisterWriting calls; exposed so tests
	// can assert a mailbox's blocked->active arming registers write
	// interest exactly once per transition.
	writeRegistrations atomic.Int64
}

// NewSocketManager wraps socket with a manager that calls onReadChunk
// for every inbound chunk and onAbort exactly once at shutdown.
func NewSocketManager(socket Socket, onReadChunk func([]byte), onAbort func(AbortReason)) *SocketManager {
	sm := &SocketManager{
		socket:      socket,
		onReadChunk: onReadChunk,
		onAbort:     onAbort,
		writeCh:     make(chan []byte, 64),
		done:        make(chan struct{}),
	}
	sm.refs.Store(1)
	go sm.writePump()
	return sm
}

func (sm *SocketManager) ID() SocketID { return sm.socket.ID() }

// Enqueue hands p to the write pump. It returns ErrSocketClosed once the
// manager has been closed.
func (sm *SocketManager) Enqueue(p []byte) error {
	sm.mu.Lock()
	closed := sm.closed
	sm.mu.Unlock()
	if closed {
		return ErrSocketClosed
	}
	select {
	case sm.writeCh <- p:
		return nil
	case <-sm.done:
		return ErrSocketClosed
	}
}

func (sm *SocketManager) writePump() {
	for {
		select {
		case p := <-sm.writeCh:
			if _, err := sm.socket.Write(p); err != nil {
				sm.Abort(fatalf("write: %w", err))
				return
			}
		case <-sm.done:
			return
		}
	}
}

// RegisterWriting arms this manager for pending outbound work. Every
// Enqueue already wakes writePump through writeCh, so this channel-based
// pipeline never needs a separate readiness registration to actually
// get bytes written; RegisterWriting exists as the observable hook an
// ActorShell's mailbox calls exactly once per blocked->active
// transition (see Mailbox.SetActivateFunc), the write-event
// registration spec.md §4.7 describes for the reactor-style design this
// pipeline adapts.
func (sm *SocketManager) RegisterWriting() {
	sm.writeRegistrations.Add(1)
}

// WriteRegistrations reports how many times RegisterWriting has fired.
func (sm *SocketManager) WriteRegistrations() int64 {
	return sm.writeRegistrations.Load()
}

// dispatchRead is called by the multiplexer's single dispatch goroutine;
// it must never block.
func (sm *SocketManager) dispatchRead(chunk []byte) {
	sm.onReadChunk(chunk)
}

// AbortReason returns the reason this manager closed, or the zero value
// if it is still open.
func (sm *SocketManager) AbortReason() AbortReason {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.abort
}

// Abort tears the manager down with reason, unless it has already been
// torn down (first caller wins; later calls are no-ops).
func (sm *SocketManager) Abort(reason AbortReason) {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return
	}
	sm.closed = true
	sm.abort = reason
	sm.mu.Unlock()

	close(sm.done)
	_ = sm.socket.Close()
	if sm.onAbort != nil {
		sm.onAbort(reason)
	}
}

// Retain/Release implement the reference-counted shutdown the spec
// calls for: multiple upstream collaborators (endpoint manager, proxy
// observers) may hold a reference, and dropping the last one aborts the
// manager. The count does not delay an explicit Abort, which closes the
// underlying socket immediately.
func (sm *SocketManager) Retain() { sm.refs.Add(1) }

// Release drops a reference; when it reaches zero the manager aborts
// with a normal-closure reason if it has not already aborted.
func (sm *SocketManager) Release() {
	if sm.refs.Add(-1) == 0 {
		sm.Abort(AbortReason{Kind: ErrKindRecoverable, Err: ErrSocketClosed})
	}
}
