package basp

import "testing"

func TestFrameAssemblerSingleMessage(t *testing.T) {
	var f FrameAssembler
	buf := EncodeMessage(nil, HeartbeatPayload{Sequence: 5})

	framed, err := f.Feed(buf)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(framed) != 1 {
		t.Fatalf("len(framed) = %d, want 1", len(framed))
	}
	if framed[0].Header.OperationData != 5 {
		t.Fatalf("OperationData = %d, want 5", framed[0].Header.OperationData)
	}
}

func TestFrameAssemblerSplitAcrossReads(t *testing.T) {
	var f FrameAssembler
	buf := EncodeMessage(nil, ActorMessagePayload{
		From: Address{Node: NewNodeID(), Actor: 1},
		To:   Address{Node: NewNodeID(), Actor: 2},
		Body: []byte("payload body bytes"),
	})

	// feed the header split across two reads, and the payload split
	// across three more.
	splits := []int{3, HeaderSize - 3, 5, 5, len(buf)}
	off := 0
	var total []Framed
	for _, n := range splits {
		end := off + n
		if end > len(buf) {
			end = len(buf)
		}
		got, err := f.Feed(buf[off:end])
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		total = append(total, got...)
		off = end
	}

	if len(total) != 1 {
		t.Fatalf("len(total) = %d, want 1", len(total))
	}
	decoded, err := DecodePayload(total[0].Header, total[0].Body)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	got := decoded.(ActorMessagePayload)
	if string(got.Body) != "payload body bytes" {
		t.Fatalf("Body = %q", got.Body)
	}
}

func TestFrameAssemblerMultipleMessagesOneChunk(t *testing.T) {
	var f FrameAssembler
	var buf []byte
	buf = EncodeMessage(buf, HeartbeatPayload{Sequence: 1})
	buf = EncodeMessage(buf, HeartbeatPayload{Sequence: 2})
	buf = EncodeMessage(buf, HeartbeatPayload{Sequence: 3})

	framed, err := f.Feed(buf)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(framed) != 3 {
		t.Fatalf("len(framed) = %d, want 3", len(framed))
	}
	for i, fr := range framed {
		if fr.Header.OperationData != uint64(i+1) {
			t.Errorf("framed[%d].OperationData = %d, want %d", i, fr.Header.OperationData, i+1)
		}
	}
}

func TestFrameAssemblerRejectsOversizedPayload(t *testing.T) {
	var f FrameAssembler
	h := Header{Type: MessageTypeActorMessage, PayloadLen: MaxPayloadLen + 1}
	buf := make([]byte, HeaderSize)
	h.Encode(buf)

	_, err := f.Feed(buf)
	if err == nil {
		t.Fatal("expected error for oversized payload")
	}
}
