package basp

import (
	"context"
	"log/slog"
	"sync"
)

// pollEvent is one unit of work the Multiplexer's dispatch loop
// processes: either a chunk of bytes read from a socket, or that
// socket's abort.
type pollEvent struct {
	manager *SocketManager
	chunk   []byte
	abort   *AbortReason
}

// Multiplexer is the single-threaded I/O event selector: it registers
// SocketManagers, and its PollOnce/Run methods are the only place read
// events are ever dispatched to manager callbacks, guaranteeing that a
// given socket manager's HandleReadEvent-equivalent logic never runs
// concurrently with itself or any other registered manager. Grounded on
// the minimal Reactor{Register, Wait/Run, Close} shape from
// other_examples/momentics-hioload-ws's reactor.go and interfaces.go,
// since the teacher has no reactor of its own (it uses a goroutine per
// connection with no shared dispatch thread).
type Multiplexer struct {
	mu       sync.Mutex
	managers map[SocketID]*SocketManager

	events chan pollEvent
}

// NewMultiplexer creates an empty Multiplexer. queueDepth bounds how
// many undispatched read events may be buffered before a socket's
// reader goroutine blocks (itself a form of backpressure, consistent
// with the mailbox-blocking Non-goal carve-out).
func NewMultiplexer(queueDepth int) *Multiplexer {
	return &Multiplexer{
		managers: make(map[SocketID]*SocketManager),
		events:   make(chan pollEvent, queueDepth),
	}
}

// Register starts dispatching socket's read events through m. It spawns
// exactly one reader goroutine for the socket's lifetime, which calls
// ReadChunk in a loop and pushes each chunk (or the terminal error) onto
// m's shared event channel.
func (m *Multiplexer) Register(sm *SocketManager, socket Socket) {
	m.mu.Lock()
	m.managers[sm.ID()] = sm
	m.mu.Unlock()

	go m.readPump(sm, socket)
}

func (m *Multiplexer) readPump(sm *SocketManager, socket Socket) {
	for {
		chunk, err := socket.ReadChunk()
		if err != nil {
			reason := fatalf("read: %w", err)
			m.events <- pollEvent{manager: sm, abort: &reason}
			return
		}
		m.events <- pollEvent{manager: sm, chunk: chunk}
	}
}

// Deregister removes sm's bookkeeping. It does not stop the reader
// goroutine directly; callers must Abort the manager (which closes the
// underlying socket, which in turn makes ReadChunk return an error and
// lets the reader goroutine exit on its own).
func (m *Multiplexer) Deregister(id SocketID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.managers, id)
}

// NumSocketManagers reports how many managers are currently registered.
func (m *Multiplexer) NumSocketManagers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.managers)
}

// PollOnce drains every event currently queued, dispatching each to its
// manager serially on the calling goroutine. If block is true and
// nothing is queued, it waits for at least one event (or ctx
// cancellation). It returns false once ctx is done and nothing more was
// dispatched.
func (m *Multiplexer) PollOnce(ctx context.Context, block bool) bool {
	dispatched := false

	if block {
		select {
		case ev := <-m.events:
			m.dispatch(ev)
			dispatched = true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case ev := <-m.events:
			m.dispatch(ev)
			dispatched = true
		default:
			return dispatched
		}
	}
}

func (m *Multiplexer) dispatch(ev pollEvent) {
	if ev.abort != nil {
		m.Deregister(ev.manager.ID())
		ev.manager.Abort(*ev.abort)
		return
	}
	ev.manager.dispatchRead(ev.chunk)
}

// Run loops PollOnce(ctx, true) until ctx is cancelled, then aborts every
// still-registered manager with a shutdown reason.
func (m *Multiplexer) Run(ctx context.Context) {
	for m.PollOnce(ctx, true) {
	}

	m.mu.Lock()
	managers := make([]*SocketManager, 0, len(m.managers))
	for _, sm := range m.managers {
		managers = append(managers, sm)
	}
	m.mu.Unlock()

	for _, sm := range managers {
		sm.Abort(AbortReason{Kind: ErrKindRecoverable, Err: ErrSocketClosed})
	}
	slog.Debug("multiplexer stopped", "managers_closed", len(managers))
}
