// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"time"

	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
)

// mscTransport is the subset of *transport.MSC the command transport
// drives. Kept as an interface so tests can substitute a simulator
// without pulling in the real block/MSC layers.
type mscTransport interface {
	Write(commandBytes []byte) error
	Read(timeout time.Duration) ([]byte, error)
}

// Transport is the command transport: it owns no state of its own
// (spec section 4.3, "memoryless between calls") beyond a reference to
// the underlying MSC transport and the per-read timeout to apply.
type Transport struct {
	msc     mscTransport
	timeout time.Duration
}

// NewTransport wraps msc with a fixed per-read timeout used for both
// the initial response and any C5 continuation reads.
func NewTransport(msc mscTransport, timeout time.Duration) *Transport {
	return &Transport{msc: msc, timeout: timeout}
}

// WriteRaw satisfies continuationFetcher: a single-byte command
// payload, used for C5/C4.
func (t *Transport) WriteRaw(b byte) error {
	return t.msc.Write([]byte{b})
}

// Read satisfies continuationFetcher: a plain MSC read at the
// transport's configured timeout.
func (t *Transport) Read() ([]byte, error) {
	return t.msc.Read(t.timeout)
}

// Send encodes cmd with params, writes it, and decodes the reassembled
// response. This is the core's sole public surface (spec section 6).
func (t *Transport) Send(cmd ID, params []Param) (*Result, error) {
	frame, err := EncodeFrame(cmd, params)
	if err != nil {
		return nil, err
	}
	if err := t.msc.Write(frame); err != nil {
		return nil, err
	}
	first, err := t.msc.Read(t.timeout)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, tseerr.Framing("empty inner response")
	}
	return DecodeResponse(first, t)
}
