package basp

import "sync"

// ShellMessage is one inbound delivery handed to an ActorShell.
type ShellMessage struct {
	From Address
	Body []byte
}

// ActorShell is a non-scheduled actor: it bridges I/O callbacks (BASP
// deliveries arriving on the multiplexer thread) into actor-style
// mailbox semantics without owning a goroutine loop of its own. Unlike
// the teacher's Actor (actor.go), which runs its own Receive() loop
// reading from a channel, a shell is driven externally — typically by
// the local actor system's scheduler calling Poll when it is ready to
// process the next message, exactly the "owns no thread" property
// spec.md requires of this component.
//
// A shell's mailbox starts blocked (see Mailbox) and re-arms to active
// the first time Deliver queues work since the last drain; that arming
// registers the shell's owning socket manager for write events exactly
// once, per spec.md §4.7, so the connection that fed this shell knows
// it has a pending reply or acknowledgement to flush without polling.
type ActorShell struct {
	self Address
	mbox *Mailbox[ShellMessage]

	mu    sync.Mutex
	owner *SocketManager
}

// NewActorShell creates a shell for the local actor identified by self.
func NewActorShell(self Address, mailboxSize int64) *ActorShell {
	s := &ActorShell{self: self, mbox: NewMailbox[ShellMessage](mailboxSize)}
	s.mbox.SetActivateFunc(s.registerOwnerWriting)
	return s
}

// Attach binds the socket manager that owns this shell's connection.
// EndpointManager calls this when a shell is registered for a
// particular peer's traffic (see EndpointManager.RegisterShell).
func (s *ActorShell) Attach(owner *SocketManager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = owner
}

func (s *ActorShell) registerOwnerWriting() {
	s.mu.Lock()
	owner := s.owner
	s.mu.Unlock()
	if owner != nil {
		owner.RegisterWriting()
	}
}

// Ref reports the local address this shell represents.
func (s *ActorShell) Ref() Address { return s.self }

// Deliver enqueues an inbound message, called from the endpoint
// manager's BASP dispatch path. It never blocks: a full mailbox reports
// ErrRingBufferFull and the caller treats the message as a dead letter.
func (s *ActorShell) Deliver(from Address, body []byte) error {
	return s.mbox.Push(ShellMessage{From: from, Body: body})
}

// Poll dequeues the next message, if any, for the external scheduler to
// process.
func (s *ActorShell) Poll() (ShellMessage, bool) {
	msg, ok, _ := s.mbox.Pop()
	return msg, ok
}

// Notify returns a channel signaled whenever Deliver has queued new
// work.
func (s *ActorShell) Notify() <-chan struct{} {
	return s.mbox.Notify()
}

// Close permanently closes the shell's mailbox and detaches its owner;
// further Deliver calls fail with ErrMailboxClosed.
func (s *ActorShell) Close() {
	s.mbox.Close()
	s.mu.Lock()
	s.owner = nil
	s.mu.Unlock()
}
