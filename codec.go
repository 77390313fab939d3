package basp

import (
	"encoding/binary"
	"fmt"
)

// Payload is anything that can be framed as a BASP message body.
type Payload interface {
	// messageType returns the MessageType this payload serializes as.
	messageType() MessageType
	// operationData returns the header's operation_data field for this
	// payload (protocol version, request id, sequence number, or 0).
	operationData() uint64
	// encode appends the wire form of the payload to dst and returns it.
	encode(dst []byte) []byte
}

// HandshakePayload is the first message exchanged on a new connection.
type HandshakePayload struct {
	Node        NodeID
	Application string // logical application identifier, rejected on mismatch
	Version     uint32 // protocol version, see ErrHandshakeVersionMismatch
}

func (p HandshakePayload) messageType() MessageType { return MessageTypeHandshake }
func (p HandshakePayload) operationData() uint64     { return uint64(p.Version) }
func (p HandshakePayload) encode(dst []byte) []byte {
	dst = append(dst, p.Node[:]...)
	dst = putStr(dst, p.Application)
	return dst
}

func decodeHandshakePayload(version uint32, body []byte) (HandshakePayload, error) {
	if len(body) < 16 {
		return HandshakePayload{}, fmt.Errorf("%w: handshake payload too short", ErrMalformedPayload)
	}
	var node NodeID
	copy(node[:], body[:16])
	app, _, err := getStr(body[16:])
	if err != nil {
		return HandshakePayload{}, err
	}
	return HandshakePayload{Node: node, Application: app, Version: version}, nil
}

// ActorMessagePayload carries an opaque, already-serialized actor
// message body between two addresses. Serialization of the body itself
// is the external actor system's concern; this package never inspects
// it.
type ActorMessagePayload struct {
	From Address
	To   Address
	Body []byte
}

func (p ActorMessagePayload) messageType() MessageType { return MessageTypeActorMessage }
func (p ActorMessagePayload) operationData() uint64     { return 0 }
func (p ActorMessagePayload) encode(dst []byte) []byte {
	dst = putAddr(dst, p.From)
	dst = putAddr(dst, p.To)
	dst = putBytes(dst, p.Body)
	return dst
}

func decodeActorMessagePayload(body []byte) (ActorMessagePayload, error) {
	from, rest, err := getAddr(body)
	if err != nil {
		return ActorMessagePayload{}, err
	}
	to, rest, err := getAddr(rest)
	if err != nil {
		return ActorMessagePayload{}, err
	}
	payload, _, err := getBytes(rest)
	if err != nil {
		return ActorMessagePayload{}, err
	}
	return ActorMessagePayload{From: from, To: to, Body: payload}, nil
}

// ResolveRequestPayload asks the remote endpoint to materialize a proxy
// for the named logical key, correlated by RequestID.
type ResolveRequestPayload struct {
	RequestID uint64
	Key       string
}

func (p ResolveRequestPayload) messageType() MessageType { return MessageTypeResolveRequest }
func (p ResolveRequestPayload) operationData() uint64     { return p.RequestID }
func (p ResolveRequestPayload) encode(dst []byte) []byte {
	return putStr(dst, p.Key)
}

func decodeResolveRequestPayload(requestID uint64, body []byte) (ResolveRequestPayload, error) {
	key, rest, err := getStr(body)
	if err != nil {
		return ResolveRequestPayload{}, err
	}
	if len(rest) != 0 {
		return ResolveRequestPayload{}, fmt.Errorf("%w: trailing bytes after resolve_request key", ErrMalformedPayload)
	}
	return ResolveRequestPayload{RequestID: requestID, Key: key}, nil
}

// ResolveResponsePayload answers a ResolveRequestPayload. Found is false
// when the key names no actor on the responding node; Actor is only
// meaningful when Found is true.
type ResolveResponsePayload struct {
	RequestID uint64
	Found     bool
	Actor     ActorID
}

func (p ResolveResponsePayload) messageType() MessageType { return MessageTypeResolveResponse }
func (p ResolveResponsePayload) operationData() uint64     { return p.RequestID }
func (p ResolveResponsePayload) encode(dst []byte) []byte {
	if p.Found {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	return putI64(dst, int64(p.Actor))
}

func decodeResolveResponsePayload(requestID uint64, body []byte) (ResolveResponsePayload, error) {
	if len(body) < 1 {
		return ResolveResponsePayload{}, fmt.Errorf("%w: resolve_response payload too short", ErrMalformedPayload)
	}
	found := body[0] != 0
	actor, _, err := getI64(body[1:])
	if err != nil {
		return ResolveResponsePayload{}, err
	}
	return ResolveResponsePayload{RequestID: requestID, Found: found, Actor: ActorID(actor)}, nil
}

// MonitorMessagePayload registers Watcher's interest in Watchee's
// termination. A DownMessagePayload for Watchee is delivered to Watcher
// when it terminates, locally or on disconnect.
type MonitorMessagePayload struct {
	Watcher Address
	Watchee Address
}

func (p MonitorMessagePayload) messageType() MessageType { return MessageTypeMonitorMessage }
func (p MonitorMessagePayload) operationData() uint64     { return 0 }
func (p MonitorMessagePayload) encode(dst []byte) []byte {
	dst = putAddr(dst, p.Watcher)
	dst = putAddr(dst, p.Watchee)
	return dst
}

func decodeMonitorMessagePayload(body []byte) (MonitorMessagePayload, error) {
	watcher, rest, err := getAddr(body)
	if err != nil {
		return MonitorMessagePayload{}, err
	}
	watchee, _, err := getAddr(rest)
	if err != nil {
		return MonitorMessagePayload{}, err
	}
	return MonitorMessagePayload{Watcher: watcher, Watchee: watchee}, nil
}

// DownReason explains why a DownMessagePayload was emitted.
type DownReason byte

const (
	DownReasonNormal DownReason = iota
	DownReasonError
	DownReasonConnectionLost
)

// DownMessagePayload notifies a watcher that Watchee has terminated.
type DownMessagePayload struct {
	Watchee Address
	Reason  DownReason
}

func (p DownMessagePayload) messageType() MessageType { return MessageTypeDownMessage }
func (p DownMessagePayload) operationData() uint64     { return 0 }
func (p DownMessagePayload) encode(dst []byte) []byte {
	dst = putAddr(dst, p.Watchee)
	return append(dst, byte(p.Reason))
}

func decodeDownMessagePayload(body []byte) (DownMessagePayload, error) {
	watchee, rest, err := getAddr(body)
	if err != nil {
		return DownMessagePayload{}, err
	}
	if len(rest) < 1 {
		return DownMessagePayload{}, fmt.Errorf("%w: down_message payload too short", ErrMalformedPayload)
	}
	return DownMessagePayload{Watchee: watchee, Reason: DownReason(rest[0])}, nil
}

// HeartbeatPayload carries no body; OperationData on its header carries
// a monotonic sequence number.
type HeartbeatPayload struct {
	Sequence uint64
}

func (p HeartbeatPayload) messageType() MessageType { return MessageTypeHeartbeat }
func (p HeartbeatPayload) operationData() uint64     { return p.Sequence }
func (p HeartbeatPayload) encode(dst []byte) []byte  { return dst }

// ErrMalformedPayload indicates a payload's bytes do not match the shape
// its header's message type requires.
var ErrMalformedPayload = fmt.Errorf("basp: malformed payload")

// EncodeMessage appends the wire form (header + payload) of p to dst.
func EncodeMessage(dst []byte, p Payload) []byte {
	var body []byte
	body = p.encode(body)

	hb := getHeaderBuf()
	h := Header{Type: p.messageType(), PayloadLen: uint32(len(body)), OperationData: p.operationData()}
	h.Encode(*hb)
	dst = append(dst, *hb...)
	putHeaderBuf(hb)

	dst = append(dst, body...)
	return dst
}

// DecodePayload parses a Payload from a Header and its matching body
// bytes (exactly PayloadLen bytes).
func DecodePayload(h Header, body []byte) (Payload, error) {
	if uint32(len(body)) != h.PayloadLen {
		return nil, fmt.Errorf("%w: body length %d != header payload_len %d", ErrMalformedPayload, len(body), h.PayloadLen)
	}
	switch h.Type {
	case MessageTypeHandshake:
		return decodeHandshakePayload(uint32(h.OperationData), body)
	case MessageTypeActorMessage:
		return decodeActorMessagePayload(body)
	case MessageTypeResolveRequest:
		return decodeResolveRequestPayload(h.OperationData, body)
	case MessageTypeResolveResponse:
		return decodeResolveResponsePayload(h.OperationData, body)
	case MessageTypeMonitorMessage:
		return decodeMonitorMessagePayload(body)
	case MessageTypeDownMessage:
		return decodeDownMessagePayload(body)
	case MessageTypeHeartbeat:
		return HeartbeatPayload{Sequence: h.OperationData}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, byte(h.Type))
	}
}

// --- primitive put/get helpers, grounded in the teacher's putStr/getStr/putI64/getI64 style ---

func putStr(dst []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, s...)
}

func getStr(src []byte) (string, []byte, error) {
	if len(src) < 2 {
		return "", nil, fmt.Errorf("%w: truncated string length", ErrMalformedPayload)
	}
	n := int(binary.BigEndian.Uint16(src[:2]))
	src = src[2:]
	if len(src) < n {
		return "", nil, fmt.Errorf("%w: truncated string body", ErrMalformedPayload)
	}
	return string(src[:n]), src[n:], nil
}

func putBytes(dst []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

func getBytes(src []byte) ([]byte, []byte, error) {
	if len(src) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated bytes length", ErrMalformedPayload)
	}
	n := int(binary.BigEndian.Uint32(src[:4]))
	src = src[4:]
	if len(src) < n {
		return nil, nil, fmt.Errorf("%w: truncated bytes body", ErrMalformedPayload)
	}
	out := make([]byte, n)
	copy(out, src[:n])
	return out, src[n:], nil
}

func putI64(dst []byte, v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return append(dst, buf[:]...)
}

func getI64(src []byte) (int64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, fmt.Errorf("%w: truncated int64", ErrMalformedPayload)
	}
	return int64(binary.BigEndian.Uint64(src[:8])), src[8:], nil
}

func putAddr(dst []byte, a Address) []byte {
	dst = append(dst, a.Node[:]...)
	return putI64(dst, int64(a.Actor))
}

func getAddr(src []byte) (Address, []byte, error) {
	if len(src) < 16 {
		return Address{}, nil, fmt.Errorf("%w: truncated address", ErrMalformedPayload)
	}
	var node NodeID
	copy(node[:], src[:16])
	actor, rest, err := getI64(src[16:])
	if err != nil {
		return Address{}, nil, err
	}
	return Address{Node: node, Actor: ActorID(actor)}, rest, nil
}
