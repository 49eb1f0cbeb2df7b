// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"encoding/binary"

	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
)

// innerFrameMagic is the 2-byte constant opening every inner command
// frame (spec section 3).
var innerFrameMagic = [2]byte{0x5C, 0x54}

// fragmentContinue and fragmentAbort are the one-byte command payloads
// used to request the next fragment of a multi-block response, and to
// abort a partial fetch after an error (spec section 4.3).
const (
	fragmentContinue byte = 0xC5
	fragmentAbort    byte = 0xC4
)

// EncodeFrame builds the inner command frame for cmd with params,
// ready to be handed to the MSC transport's Write.
func EncodeFrame(cmd ID, params []Param) ([]byte, error) {
	body, err := EncodeParams(params)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, 6+len(body))
	frame = append(frame, innerFrameMagic[:]...)
	frame = appendUint16(frame, uint16(cmd))
	frame = appendUint16(frame, uint16(len(body)))
	frame = append(frame, body...)
	return frame, nil
}

// Result is the decoded form of an inner response frame: either a list
// of typed parameters (the Normal variant) or raw bytes (the Export
// variant, first 2 bytes 0x9000). IsRaw selects which of Params/Raw
// is meaningful; an empty normal response leaves both nil.
type Result struct {
	Params []Param
	Raw    []byte
	IsRaw  bool
}

// responseKind classifies the first two bytes of an inner response
// payload, per spec section 3's three-variant disambiguation.
type responseKind int

const (
	kindError responseKind = iota
	kindExport
	kindNormal
)

const exportMarker uint16 = 0x9000

func classify(firstTwo uint16) responseKind {
	if tseerr.InRange(firstTwo) {
		return kindError
	}
	if firstTwo == exportMarker {
		return kindExport
	}
	return kindNormal
}

// continuationFetcher is satisfied by the MSC transport: write a single
// byte (0xC5 continue / 0xC4 abort) and read the next reply payload.
type continuationFetcher interface {
	WriteRaw(b byte) error
	Read() ([]byte, error)
}

// DecodeResponse classifies and fully reassembles an inner response,
// requesting continuation fragments from fetcher as needed (spec
// section 4.3's fragmented-read protocol). first is the first payload
// already read via the initiating MSC Read.
func DecodeResponse(first []byte, fetcher continuationFetcher) (*Result, error) {
	if len(first) < 2 {
		return nil, tseerr.Framing("inner response shorter than the 2-byte length/error prefix")
	}
	firstTwo := binary.BigEndian.Uint16(first[0:2])

	switch classify(firstTwo) {
	case kindError:
		return nil, tseerr.Device(firstTwo)

	case kindExport:
		if len(first) < 10 {
			abort(fetcher)
			return nil, tseerr.Framing("export response shorter than the 8-byte total-length field")
		}
		total := binary.BigEndian.Uint64(first[2:10])
		raw, err := reassemble(first[10:], total, fetcher)
		if err != nil {
			return nil, err
		}
		return &Result{Raw: raw, IsRaw: true}, nil

	default: // kindNormal
		total := uint64(firstTwo)
		payload, err := reassemble(first[2:], total, fetcher)
		if err != nil {
			return nil, err
		}
		params, err := DecodeParams(payload)
		if err != nil {
			abort(fetcher)
			return nil, err
		}
		return &Result{Params: params}, nil
	}
}

// reassemble accumulates bytes across 0xC5 continuation fragments until
// total bytes have been gathered. A response whose declared length
// equals its delivered length in the first fragment never triggers a
// continuation request (spec section 4.3's tie-break).
func reassemble(first []byte, total uint64, fetcher continuationFetcher) ([]byte, error) {
	if uint64(len(first)) > total {
		abort(fetcher)
		return nil, tseerr.Framing("delivered bytes exceed the declared response length")
	}
	buf := make([]byte, len(first))
	copy(buf, first)
	for uint64(len(buf)) < total {
		if err := fetcher.WriteRaw(fragmentContinue); err != nil {
			return nil, err
		}
		next, err := fetcher.Read()
		if err != nil {
			abort(fetcher)
			return nil, err
		}
		remaining := total - uint64(len(buf))
		if uint64(len(next)) > remaining {
			next = next[:remaining]
		}
		buf = append(buf, next...)
	}
	return buf, nil
}

// abort emits the 0xC4 abort byte after a mid-stream failure, per spec
// section 4.3: "The host MUST emit C4 on any error encountered between
// C5 requests before surfacing the error." Its own error is swallowed:
// the original failure is what the caller needs to see.
func abort(fetcher continuationFetcher) {
	_ = fetcher.WriteRaw(fragmentAbort)
}
