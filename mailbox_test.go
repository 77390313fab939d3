package basp

import "testing"

func TestMailboxPushPop(t *testing.T) {
	m := NewMailbox[int](4)
	if err := m.Push(1); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := m.Push(2); err != nil {
		t.Fatalf("Push: %v", err)
	}

	v, ok, err := m.Pop()
	if err != nil || !ok || v != 1 {
		t.Fatalf("Pop = %d, %v, %v, want 1, true, nil", v, ok, err)
	}
	v, ok, err = m.Pop()
	if err != nil || !ok || v != 2 {
		t.Fatalf("Pop = %d, %v, %v, want 2, true, nil", v, ok, err)
	}
	_, ok, err = m.Pop()
	if err != nil || ok {
		t.Fatalf("Pop on empty mailbox = ok=%v err=%v, want false, nil", ok, err)
	}
}

func TestMailboxNotify(t *testing.T) {
	m := NewMailbox[int](4)
	select {
	case <-m.Notify():
		t.Fatal("notify fired before any Push")
	default:
	}

	_ = m.Push(1)
	select {
	case <-m.Notify():
	default:
		t.Fatal("notify did not fire after Push")
	}
}

// TestMailboxStartsBlockedAndArmsOnFirstPush covers the spec's "mailbox
// starts blocked; blocked->active is an implicit, successful transition
// on enqueue" model: a fresh mailbox is blocked, the first Push both
// succeeds and arms it to active, and draining it back to empty
// disarms it to blocked again.
func TestMailboxStartsBlockedAndArmsOnFirstPush(t *testing.T) {
	m := NewMailbox[int](4)
	if m.State() != MailboxBlocked {
		t.Fatalf("initial state = %v, want MailboxBlocked", m.State())
	}

	if err := m.Push(1); err != nil {
		t.Fatalf("Push on a blocked mailbox should succeed: %v", err)
	}
	if m.State() != MailboxActive {
		t.Fatalf("state after first Push = %v, want MailboxActive", m.State())
	}

	if _, ok, _ := m.Pop(); !ok {
		t.Fatal("Pop after Push should report ok = true")
	}
	if m.State() != MailboxBlocked {
		t.Fatalf("state after draining to empty = %v, want MailboxBlocked", m.State())
	}
}

// TestMailboxActivateFiresExactlyOnceUntilDrained is the literal
// "owning socket manager is registered for write events exactly once"
// scenario: SetActivateFunc's callback must fire once for the
// blocked->active edge, not once per Push while already active, and
// must fire again only after the mailbox drains back to blocked.
func TestMailboxActivateFiresExactlyOnceUntilDrained(t *testing.T) {
	m := NewMailbox[int](4)
	activations := 0
	m.SetActivateFunc(func() { activations++ })

	_ = m.Push(1)
	_ = m.Push(2)
	_ = m.Push(3)
	if activations != 1 {
		t.Fatalf("activations after 3 pushes while active = %d, want 1", activations)
	}

	m.Pop()
	m.Pop()
	m.Pop()
	if activations != 1 {
		t.Fatalf("activations after draining to empty = %d, want 1 (disarm alone must not fire it)", activations)
	}

	_ = m.Push(4)
	if activations != 2 {
		t.Fatalf("activations after re-arming Push = %d, want 2", activations)
	}
}

func TestMailboxCloseRejectsPushAndPop(t *testing.T) {
	m := NewMailbox[int](4)
	_ = m.Push(1)
	m.Close()

	if err := m.Push(2); err != ErrMailboxClosed {
		t.Fatalf("Push on closed mailbox = %v, want ErrMailboxClosed", err)
	}
	_, _, err := m.Pop()
	if err != ErrMailboxClosed {
		t.Fatalf("Pop on closed mailbox = %v, want ErrMailboxClosed", err)
	}
}

func TestMailboxStateTransitions(t *testing.T) {
	m := NewMailbox[int](4)
	if m.State() != MailboxBlocked {
		t.Fatalf("initial state = %v, want MailboxBlocked", m.State())
	}
	_ = m.Push(1)
	if m.State() != MailboxActive {
		t.Fatalf("state after Push = %v, want MailboxActive", m.State())
	}
	m.Close()
	if m.State() != MailboxClosed {
		t.Fatalf("state after Close = %v, want MailboxClosed", m.State())
	}
}

func TestMailboxPushFullReturnsRingBufferFull(t *testing.T) {
	m := NewMailbox[int](2)
	_ = m.Push(1)
	_ = m.Push(2)
	if err := m.Push(3); err != ErrRingBufferFull {
		t.Fatalf("Push on full mailbox = %v, want ErrRingBufferFull", err)
	}
}

func TestMailboxLen(t *testing.T) {
	m := NewMailbox[int](4)
	_ = m.Push(1)
	_ = m.Push(2)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	_, _, _ = m.Pop()
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestMailboxWraparound(t *testing.T) {
	m := NewMailbox[int](3)
	_ = m.Push(1)
	_ = m.Push(2)
	m.Pop()
	_ = m.Push(3)
	_ = m.Push(4)
	m.Pop()
	m.Pop()
	v, ok, _ := m.Pop()
	if !ok || v != 4 {
		t.Fatalf("Pop() = %d, %v, want 4, true", v, ok)
	}
}
