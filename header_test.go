package basp

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Type: MessageTypeActorMessage, PayloadLen: 42, OperationData: 0xdeadbeef}
	buf := make([]byte, HeaderSize)
	h.Encode(buf)

	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeaderSizeIsThirteenBytes(t *testing.T) {
	if HeaderSize != 13 {
		t.Fatalf("HeaderSize = %d, want 13", HeaderSize)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	if err == nil {
		t.Fatal("expected error decoding truncated header")
	}
}

func TestDecodeHeaderUnknownType(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0xFF
	_, err := DecodeHeader(buf)
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestMessageTypeValues(t *testing.T) {
	cases := map[MessageType]byte{
		MessageTypeHandshake:       0x00,
		MessageTypeActorMessage:    0x01,
		MessageTypeResolveRequest:  0x02,
		MessageTypeResolveResponse: 0x03,
		MessageTypeMonitorMessage:  0x04,
		MessageTypeDownMessage:     0x05,
		MessageTypeHeartbeat:       0x06,
	}
	for mt, want := range cases {
		if byte(mt) != want {
			t.Errorf("%v = 0x%02x, want 0x%02x", mt, byte(mt), want)
		}
	}
}
