// baspdemo starts two BASP nodes on localhost, resolves an actor by
// name across the connection, and forwards an actor message to it.
//
// Run:  go run ./cmd/baspdemo
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/relaymesh/basp"
)

// demoActorSystem is a minimal in-memory basp.ActorSystem standing in
// for the real scheduler this package never implements itself. Every
// local actor it exposes is a non-scheduled basp.ActorShell: Deliver
// just enqueues onto the named actor's shell, and a drain goroutine
// started in run() plays the part of the actor system's own scheduler
// reaching in through the shell's Notify/Poll, as SPEC_FULL §4.7 and §7
// describe — the shell itself owns no thread.
type demoActorSystem struct {
	name  string
	byKey map[string]basp.ActorID

	mu     sync.Mutex
	shells map[basp.ActorID]*basp.ActorShell

	delivery chan string
}

func newDemoActorSystem(name string) *demoActorSystem {
	return &demoActorSystem{
		name:     name,
		byKey:    make(map[string]basp.ActorID),
		shells:   make(map[basp.ActorID]*basp.ActorShell),
		delivery: make(chan string, 1),
	}
}

// register creates a shell-backed local actor reachable by key, and
// starts a goroutine draining it — standing in for the scheduler
// loop a real ActorSystem would run.
func (s *demoActorSystem) register(ctx context.Context, key string, actor basp.ActorID) {
	shell := basp.NewActorShell(basp.Address{Node: basp.NodeID{}, Actor: actor}, 64)

	s.mu.Lock()
	s.byKey[key] = actor
	s.shells[actor] = shell
	s.mu.Unlock()

	go s.run(ctx, shell)
}

func (s *demoActorSystem) run(ctx context.Context, shell *basp.ActorShell) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-shell.Notify():
			for {
				msg, ok := shell.Poll()
				if !ok {
					break
				}
				s.delivery <- fmt.Sprintf("[%s] actor %d received %q from %s", s.name, shell.Ref().Actor, msg.Body, msg.From)
			}
		}
	}
}

func (s *demoActorSystem) Deliver(from, to basp.Address, body []byte) {
	s.mu.Lock()
	shell, ok := s.shells[to.Actor]
	s.mu.Unlock()
	if !ok {
		fmt.Printf("[%s] dropped message to unknown actor %d\n", s.name, to.Actor)
		return
	}
	if err := shell.Deliver(from, body); err != nil {
		fmt.Printf("[%s] actor %d mailbox rejected delivery: %v\n", s.name, to.Actor, err)
	}
}

func (s *demoActorSystem) Resolve(key string) (basp.ActorID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	return id, ok
}

func (s *demoActorSystem) WatchLocal(actor basp.ActorID, onDown func(basp.DownReason)) func() {
	return func() {}
}

func (s *demoActorSystem) NotifyDown(watcher basp.ActorID, watchee basp.Address, reason basp.DownReason) {
	fmt.Printf("[%s] actor %d notified: %s is down (%v)\n", s.name, watcher, watchee, reason)
}

func main() {
	basp.InitLogger(slog.LevelInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverSys := newDemoActorSystem("server")
	serverSys.register(ctx, "greeter", basp.ActorID(7))

	serverNode := basp.NewNode(basp.NodeID{}, serverSys, basp.WithApplication("baspdemo"))
	defer serverNode.Close()
	go serverNode.Run(ctx)

	serverTr, err := basp.NewStreamTransport(serverNode, "127.0.0.1:0")
	if err != nil {
		log.Fatalf("server NewStreamTransport: %v", err)
	}
	defer serverTr.Close()
	go func() {
		if err := serverTr.Serve(ctx); err != nil {
			log.Printf("server Serve: %v", err)
		}
	}()

	clientSys := newDemoActorSystem("client")
	clientNode := basp.NewNode(basp.NodeID{}, clientSys, basp.WithApplication("baspdemo"))
	defer clientNode.Close()
	go clientNode.Run(ctx)

	clientTr, err := basp.NewStreamTransport(clientNode, "127.0.0.1:0")
	if err != nil {
		log.Fatalf("client NewStreamTransport: %v", err)
	}
	defer clientTr.Close()
	go func() {
		if err := clientTr.Serve(ctx); err != nil {
			log.Printf("client Serve: %v", err)
		}
	}()

	fmt.Printf("server listening on %s\n", serverTr.Addr())
	fmt.Printf("client listening on %s\n", clientTr.Addr())

	if err := clientTr.Dial(ctx, serverTr.Addr().String()); err != nil {
		log.Fatalf("Dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for clientNode.Metrics().HandshakesOK.Load() == 0 {
		if time.Now().After(deadline) {
			log.Fatal("timed out waiting for handshake")
		}
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Println("handshake complete")

	var endpoint *basp.EndpointManager
	for _, ep := range clientNode.Endpoints() {
		endpoint = ep
	}
	if endpoint == nil {
		log.Fatal("no endpoint manager after handshake")
	}

	fmt.Println("\n--- resolving \"greeter\" on the server ---")
	res := endpoint.Resolve("greeter")
	if res.Err != nil {
		log.Fatalf("Resolve: %v", res.Err)
	}
	if !res.Found {
		log.Fatal("greeter not found on server")
	}
	fmt.Printf("resolved to %s\n", res.Addr)

	fmt.Println("\n--- sending an actor message to the resolved proxy ---")
	from := basp.Address{Node: clientNode.ID(), Actor: 1}
	if err := endpoint.SendActorMessage(from, res.Addr, []byte("hello from the client")); err != nil {
		log.Fatalf("SendActorMessage: %v", err)
	}

	select {
	case msg := <-serverSys.delivery:
		fmt.Println(msg)
	case <-time.After(2 * time.Second):
		log.Fatal("timed out waiting for delivery")
	}

	fmt.Println("\nDemo complete.")
}
