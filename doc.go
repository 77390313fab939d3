// Package basp implements the BASP (Binary Actor System Protocol) wire
// format and the socket-driven machinery that carries it: a layered
// transport pipeline over TCP, UDP, and WebSocket, a single-threaded
// multiplexer dispatching socket readiness to per-connection managers, a
// process-wide proxy registry, actor-style mailboxes, and the endpoint
// manager that ties resolve/monitor/heartbeat traffic back to a local
// actor system.
//
// This package never allocates actor identities or schedules actor code;
// it only carries bytes between an external ActorSystem collaborator and
// the network.
package basp
