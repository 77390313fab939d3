package basp

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeID is the opaque identity of a BASP endpoint. It is assigned once
// at process boot (or loaded from persisted config) and never changes
// for the lifetime of the process; this package never allocates one on
// its own behalf beyond NewNodeID.
type NodeID uuid.UUID

// NewNodeID generates a fresh random NodeID.
func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

func (n NodeID) String() string {
	return uuid.UUID(n).String()
}

// IsZero reports whether n is the zero-value NodeID (uninitialized).
func (n NodeID) IsZero() bool {
	return n == NodeID{}
}

// ActorID is an opaque identity for a local or remote actor, allocated
// by the external actor system. This package only ever carries it.
type ActorID uint64

// Address identifies a single actor on a single node.
type Address struct {
	Node  NodeID
	Actor ActorID
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%d", a.Node, a.Actor)
}

// IsLocal reports whether addr names an actor on node self.
func (a Address) IsLocal(self NodeID) bool {
	return a.Node == self
}
