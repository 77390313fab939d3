package basp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType identifies the kind of BASP message a header introduces.
type MessageType byte

const (
	MessageTypeHandshake       MessageType = 0x00
	MessageTypeActorMessage    MessageType = 0x01
	MessageTypeResolveRequest  MessageType = 0x02
	MessageTypeResolveResponse MessageType = 0x03
	MessageTypeMonitorMessage  MessageType = 0x04
	MessageTypeDownMessage     MessageType = 0x05
	MessageTypeHeartbeat       MessageType = 0x06
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeHandshake:
		return "handshake"
	case MessageTypeActorMessage:
		return "actor_message"
	case MessageTypeResolveRequest:
		return "resolve_request"
	case MessageTypeResolveResponse:
		return "resolve_response"
	case MessageTypeMonitorMessage:
		return "monitor_message"
	case MessageTypeDownMessage:
		return "down_message"
	case MessageTypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("message_type(0x%02x)", byte(t))
	}
}

func (t MessageType) Valid() bool {
	return t <= MessageTypeHeartbeat
}

// HeaderSize is the fixed serialized size of a BASP header: 1 byte type,
// 4 byte big-endian payload length, 8 byte big-endian operation data.
const HeaderSize = 13

// Header is the fixed-size preamble of every BASP message. OperationData
// carries a type-specific value: the protocol version for handshake, a
// resolve request/response id for resolve_request/resolve_response, a
// monotonic sequence number for heartbeat, and is unused (zero) for the
// remaining types.
type Header struct {
	Type          MessageType
	PayloadLen    uint32
	OperationData uint64
}

// Encode writes h into dst, which must be at least HeaderSize bytes.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderSize-1]
	dst[0] = byte(h.Type)
	binary.BigEndian.PutUint32(dst[1:5], h.PayloadLen)
	binary.BigEndian.PutUint64(dst[5:13], h.OperationData)
}

// DecodeHeader parses a Header from exactly HeaderSize bytes of src.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, io.ErrUnexpectedEOF
	}
	h := Header{
		Type:          MessageType(src[0]),
		PayloadLen:    binary.BigEndian.Uint32(src[1:5]),
		OperationData: binary.BigEndian.Uint64(src[5:13]),
	}
	if !h.Type.Valid() {
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, src[0])
	}
	return h, nil
}

// ErrUnknownMessageType is returned when a header's type byte does not
// match any known MessageType.
var ErrUnknownMessageType = fmt.Errorf("basp: unknown message type")

// MaxPayloadLen bounds PayloadLen to guard against a corrupt or hostile
// length field driving an unbounded allocation.
const MaxPayloadLen = 64 << 20 // 64 MiB
