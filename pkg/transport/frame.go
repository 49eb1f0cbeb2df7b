// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport implements the MSC block transport described in
// spec section 4.2: outer-frame construction/parsing, the suspend
// handshake, and device-readiness polling.
package transport

import (
	"bytes"
	"encoding/binary"

	"github.com/bdr-fiscal/tse-driver/pkg/block"
	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
)

// magic is the 28-byte constant opening every outer frame.
var magic = []byte("AdVancED SeCuRe SD/MMC CArd\x01")

// hostToken marks every host-originated block. A device-origin block
// carrying this same token signals a device-level framing failure.
var hostToken = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}

const (
	headerLen       = 28
	tokenLen        = 4
	readinessOffset = 32 // bytes [32..34) carry the FF FF "not ready" marker
)

var readyMarkerNotReady = [2]byte{0xFF, 0xFF}

// suspend control payloads, spec section 3.
var (
	suspendDisablePayload = []byte{0x00, 0x02, 0x53, 0x44, 0x00, 0x00}
	suspendEnablePayload  = []byte{0x00, 0x02, 0x53, 0x45, 0x00, 0x00}
)

// buildOuterFrame pads payload into a full block.Size outer frame with
// the magic header and host token.
func buildOuterFrame(payload []byte) ([]byte, error) {
	frame := make([]byte, 0, block.Size)
	frame = append(frame, magic...)
	frame = append(frame, hostToken[:]...)
	frame = append(frame, payload...)
	if len(frame) > block.Size {
		return nil, tseerr.Framing("outer frame payload too large for one block")
	}
	out := make([]byte, block.Size)
	copy(out, frame)
	return out, nil
}

// buildCommandPayload wraps command bytes in the 2-byte length + 2
// reserved-zero bytes + payload shape of a command-payload outer frame.
func buildCommandPayload(commandBytes []byte) []byte {
	payload := make([]byte, 0, 4+len(commandBytes))
	payload = appendUint16(payload, uint16(len(commandBytes)))
	payload = append(payload, 0x00, 0x00) // reserved, spec section 9: never repurposed
	payload = append(payload, commandBytes...)
	return payload
}

// parseOuterHeader validates the magic and returns the 4-byte token and
// the remaining payload bytes after it.
func parseOuterHeader(block []byte) (token [4]byte, payload []byte, err error) {
	if len(block) < headerLen+tokenLen {
		return token, nil, tseerr.Framing("block shorter than the outer header")
	}
	if !bytes.Equal(block[:headerLen], magic) {
		return token, nil, tseerr.Framing("outer frame magic header mismatch")
	}
	copy(token[:], block[headerLen:headerLen+tokenLen])
	payload = block[headerLen+tokenLen:]
	return token, payload, nil
}

// parseCommandResponse parses a command-response outer payload: a
// 2-byte big-endian length prefix followed by that many bytes.
func parseCommandResponse(payload []byte) ([]byte, error) {
	if len(payload) < 2 {
		return nil, tseerr.Framing("command response payload shorter than its length prefix")
	}
	n := binary.BigEndian.Uint16(payload[0:2])
	if int(n) > len(payload)-2 {
		return nil, tseerr.Framing("command response declared length exceeds delivered bytes")
	}
	return payload[2 : 2+int(n)], nil
}

// isNotReady reports whether block carries the FF FF readiness marker
// at bytes [32..34).
func isNotReady(blk []byte) bool {
	if len(blk) < readinessOffset+2 {
		return false
	}
	return blk[readinessOffset] == readyMarkerNotReady[0] && blk[readinessOffset+1] == readyMarkerNotReady[1]
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}
