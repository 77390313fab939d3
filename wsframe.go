package basp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// RFC-6455 opcode values.
const (
	wsOpContinuation byte = 0x0
	wsOpText         byte = 0x1
	wsOpBinary       byte = 0x2
	wsOpClose        byte = 0x8
	wsOpPing         byte = 0x9
	wsOpPong         byte = 0xA
)

const (
	wsFinBit  byte = 0x80
	wsMaskBit byte = 0x80
)

// wsFrame is one decoded RFC-6455 frame. Grounded directly in
// other_examples/momentics-hioload-ws__frame.go's WSFrame shape and
// original_source/libcaf_net/caf/detail/rfc6455.hpp's field layout.
type wsFrame struct {
	Fin     bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// decodeWSFrame parses one frame's header and payload from r.
func decodeWSFrame(r io.Reader, maxPayload int64) (wsFrame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return wsFrame{}, err
	}

	fin := hdr[0]&wsFinBit != 0
	opcode := hdr[0] & 0x0F
	masked := hdr[1]&wsMaskBit != 0
	payloadLen := int64(hdr[1] & 0x7F)

	switch payloadLen {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return wsFrame{}, err
		}
		payloadLen = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return wsFrame{}, err
		}
		payloadLen = int64(binary.BigEndian.Uint64(ext[:]))
	}

	if payloadLen > maxPayload {
		return wsFrame{}, fmt.Errorf("%w: ws frame payload %d exceeds limit %d", ErrPayloadTooLarge, payloadLen, maxPayload)
	}

	var maskKey [4]byte
	if masked {
		if _, err := io.ReadFull(r, maskKey[:]); err != nil {
			return wsFrame{}, err
		}
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return wsFrame{}, err
	}
	if masked {
		wsUnmask(payload, maskKey)
	}

	return wsFrame{Fin: fin, Opcode: opcode, Masked: masked, MaskKey: maskKey, Payload: payload}, nil
}

// encodeWSFrame serializes a single complete frame. mask selects
// client-to-server masking, mandatory per RFC 6455 for any frame a
// client sends.
func encodeWSFrame(opcode byte, payload []byte, mask bool) []byte {
	dst := make([]byte, 0, 14+len(payload))
	dst = append(dst, wsFinBit|opcode)

	var maskBit byte
	if mask {
		maskBit = wsMaskBit
	}

	n := len(payload)
	switch {
	case n <= 125:
		dst = append(dst, byte(n)|maskBit)
	case n <= 0xFFFF:
		dst = append(dst, 126|maskBit)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		dst = append(dst, ext[:]...)
	default:
		dst = append(dst, 127|maskBit)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		dst = append(dst, ext[:]...)
	}

	if mask {
		var key [4]byte
		_, _ = rand.Read(key[:])
		dst = append(dst, key[:]...)
		masked := make([]byte, n)
		copy(masked, payload)
		wsUnmask(masked, key) // XOR is its own inverse: masking == unmasking
		dst = append(dst, masked...)
	} else {
		dst = append(dst, payload...)
	}

	return dst
}

func wsUnmask(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}
