// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"time"

	"github.com/bdr-fiscal/tse-driver/pkg/block"
	"github.com/bdr-fiscal/tse-driver/pkg/tselog"
	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
)

// BlockDevice is the block I/O adapter interface the MSC transport
// consumes (spec section 4.1). *block.Device satisfies it; tests
// substitute a simulator.
type BlockDevice interface {
	WriteBlock(data []byte) error
	ReadBlock() ([]byte, error)
	Close() error
}

// DefaultPollInterval is the backoff between readiness-poll reads,
// chosen to balance device turnaround (observed in the low hundreds of
// ms for signing operations) against CPU use (spec section 4.2).
const DefaultPollInterval = 50 * time.Millisecond

// DefaultTimeout bounds how long the readiness-poll loop will wait
// before raising a Timeout.
const DefaultTimeout = 10 * time.Second

// MSC is the MSC block transport: outer framing, suspend handshake, and
// readiness polling over a BlockDevice.
type MSC struct {
	dev          BlockDevice
	log          tselog.Logger
	pollInterval time.Duration
	now          func() time.Time
	sleep        func(time.Duration)

	pollRetries    int
	suspendToggles int
}

// PollRetries reports how many "not ready" blocks have been observed
// across the lifetime of this transport, for a stats/metrics caller.
func (m *MSC) PollRetries() int { return m.pollRetries }

// SuspendToggles reports how many times setSuspend has completed
// (construction plus Close, normally 2).
func (m *MSC) SuspendToggles() int { return m.suspendToggles }

// Option customizes an MSC transport at construction time.
type Option func(*MSC)

// WithPollInterval overrides the readiness-poll backoff. The
// implementer may make this adjustable, but per spec section 4.2 must
// preserve "poll, never block on the descriptor".
func WithPollInterval(d time.Duration) Option {
	return func(m *MSC) { m.pollInterval = d }
}

// withClock is used by tests to make the poll loop deterministic.
func withClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(m *MSC) {
		m.now = now
		m.sleep = sleep
	}
}

// Start opens an MSC transport over dev and wakes the device by
// disabling suspend. Construction fails if that handshake times out
// (spec section 4.2).
func Start(dev BlockDevice, log tselog.Logger, timeout time.Duration, opts ...Option) (*MSC, error) {
	m := &MSC{
		dev:          dev,
		log:          log,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.setSuspend(false, timeout); err != nil {
		return nil, err
	}
	return m, nil
}

// Close disables the device by re-enabling suspend, then releases the
// block adapter. The suspend call is attempted even if the caller is
// already unwinding from an earlier error; any failure here is logged,
// not propagated, per spec section 4.2.
func (m *MSC) Close(timeout time.Duration) error {
	if err := m.setSuspend(true, timeout); err != nil {
		m.log.Errorf("suspend-on during close failed: %v", err)
	}
	return m.dev.Close()
}

// setSuspend writes the suspend-control block for enable/disable, then
// waits for and validates the one-byte suspend response.
func (m *MSC) setSuspend(enable bool, timeout time.Duration) error {
	payload := suspendDisablePayload
	if enable {
		payload = suspendEnablePayload
	}
	frame, err := buildOuterFrame(payload)
	if err != nil {
		return err
	}
	tselog.HexDump(m.log, "write(suspend)", frame)
	if err := m.dev.WriteBlock(frame); err != nil {
		return err
	}

	blk, err := m.pollUntilReady(timeout)
	if err != nil {
		return err
	}
	_, respPayload, err := parseOuterHeader(blk)
	if err != nil {
		return err
	}
	if len(respPayload) < 1 {
		return tseerr.Framing("suspend response payload is empty")
	}
	if respPayload[0] != 0x00 {
		return tseerr.Framing("suspend response byte was not 0x00")
	}
	m.suspendToggles++
	return nil
}

// Write builds a command-payload outer block and hands it to the block
// adapter.
func (m *MSC) Write(commandBytes []byte) error {
	frame, err := buildOuterFrame(buildCommandPayload(commandBytes))
	if err != nil {
		return err
	}
	tselog.HexDump(m.log, "write", frame)
	return m.dev.WriteBlock(frame)
}

// WriteRaw writes a single-byte command payload, used for the C5/C4
// fragmented-read continuation protocol (spec section 4.3).
func (m *MSC) WriteRaw(b byte) error {
	return m.Write([]byte{b})
}

// Read polls for readiness, parses the outer block as a command
// response, and returns the payload bytes. A device token equal to the
// host token is a transport-level framing error.
func (m *MSC) Read(timeout time.Duration) ([]byte, error) {
	blk, err := m.pollUntilReady(timeout)
	if err != nil {
		return nil, err
	}
	token, payload, err := parseOuterHeader(blk)
	if err != nil {
		return nil, err
	}
	if token == hostToken {
		return nil, tseerr.Framing("device response carried the host token")
	}
	return parseCommandResponse(payload)
}

// pollUntilReady reads blocks until the readiness marker clears or the
// deadline is reached, per spec section 4.2's readiness-poll loop.
func (m *MSC) pollUntilReady(timeout time.Duration) ([]byte, error) {
	deadline := m.now().Add(timeout)
	for {
		blk, err := m.dev.ReadBlock()
		if err != nil {
			return nil, err
		}
		tselog.HexDump(m.log, "read", blk)
		if !isNotReady(blk) {
			return blk, nil
		}
		m.pollRetries++
		if !m.now().Before(deadline) {
			return nil, tseerr.Timeout("device did not become ready before the deadline")
		}
		m.sleep(m.pollInterval)
	}
}
