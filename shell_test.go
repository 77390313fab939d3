package basp

import (
	"testing"
	"time"
)

func TestActorShellDeliverAndPoll(t *testing.T) {
	self := Address{Actor: 1}
	shell := NewActorShell(self, 4)

	if shell.Ref() != self {
		t.Fatalf("Ref() = %+v, want %+v", shell.Ref(), self)
	}

	from := Address{Actor: 2}
	if err := shell.Deliver(from, []byte("hi")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	select {
	case <-shell.Notify():
	default:
		t.Fatal("expected Notify to report pending work after Deliver")
	}

	msg, ok := shell.Poll()
	if !ok {
		t.Fatal("Poll() ok = false, want true")
	}
	if msg.From != from || string(msg.Body) != "hi" {
		t.Fatalf("Poll() = %+v, want From=%+v Body=hi", msg, from)
	}

	if _, ok := shell.Poll(); ok {
		t.Fatal("Poll() on an empty shell should report ok = false")
	}
}

// TestActorShellNotifyWakesBlockedDrainLoop exercises the blocked-to-
// active wakeup a real scheduler loop relies on: a goroutine parked on
// Notify() must wake as soon as Deliver queues work, without polling.
func TestActorShellNotifyWakesBlockedDrainLoop(t *testing.T) {
	shell := NewActorShell(Address{Actor: 1}, 4)

	woke := make(chan ShellMessage, 1)
	go func() {
		<-shell.Notify()
		msg, ok := shell.Poll()
		if ok {
			woke <- msg
		}
	}()

	if err := shell.Deliver(Address{Actor: 9}, []byte("wake up")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	select {
	case msg := <-woke:
		if string(msg.Body) != "wake up" {
			t.Fatalf("Body = %q, want %q", msg.Body, "wake up")
		}
	case <-time.After(time.Second):
		t.Fatal("drain goroutine never woke after Deliver")
	}
}

// TestActorShellCloseBouncesFurtherDeliveries mirrors the cleanup
// behavior the spec requires when a local actor shell's owner tears
// it down: once Close has run, further Deliver calls must fail rather
// than silently queuing into a mailbox nothing will ever drain again.
func TestActorShellCloseBouncesFurtherDeliveries(t *testing.T) {
	shell := NewActorShell(Address{Actor: 1}, 4)

	if err := shell.Deliver(Address{Actor: 2}, []byte("before close")); err != nil {
		t.Fatalf("Deliver before Close: %v", err)
	}

	shell.Close()

	if err := shell.Deliver(Address{Actor: 2}, []byte("after close")); err != ErrMailboxClosed {
		t.Fatalf("Deliver after Close: err = %v, want %v", err, ErrMailboxClosed)
	}

	if _, ok := shell.Poll(); ok {
		t.Fatal("Poll() after Close should report ok = false, even with a backlog queued before Close")
	}
}
