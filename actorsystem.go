package basp

// ActorSystem is the narrow external collaborator this package never
// implements itself: the scheduler and identity allocator that owns
// actual actor code. BASP only ever carries bytes and addresses across
// it.
type ActorSystem interface {
	// Deliver hands a fully-received actor message body to the local
	// actor identified by to.Actor. from is the originating address,
	// which may be remote.
	Deliver(from, to Address, body []byte)

	// Resolve looks up a locally registered actor by its logical key,
	// answering an inbound resolve_request. ok is false when no local
	// actor is registered under key.
	Resolve(key string) (actor ActorID, ok bool)

	// WatchLocal registers onDown to be invoked exactly once, when the
	// given local actor terminates (normally or on error). The returned
	// cancel function removes the registration and is safe to call
	// after onDown has already fired.
	WatchLocal(actor ActorID, onDown func(DownReason)) (cancel func())

	// NotifyDown tells the actor system that a remote actor a local
	// actor was watching has terminated — either because the remote
	// side told us so (down_message) or because the connection to its
	// node was lost.
	NotifyDown(watcher ActorID, watchee Address, reason DownReason)
}
