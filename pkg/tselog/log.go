// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tselog provides the two logging levels the TSE transport
// consumes: a debug hex dump of every block exchanged with the device,
// and error logging for framing failures and timeouts.
package tselog

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// hexDumpMaxBytes bounds how much of a block we print. Matches the
// original Python driver's _format_hex_for_log, which truncates to the
// first 200 hex characters (100 bytes).
const hexDumpMaxBytes = 100

// Logger is the collaborator interface the MSC transport consumes. A
// *logrus.Logger satisfies it directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// New wraps a fresh logrus.Logger with the given level.
func New(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	return l
}

// HexDump logs a truncated hex dump of data at debug level, labelled
// (e.g. "write", "read") so interleaved block exchanges stay readable.
func HexDump(log Logger, label string, data []byte) {
	n := len(data)
	if n > hexDumpMaxBytes {
		n = hexDumpMaxBytes
	}
	suffix := ""
	if len(data) > n {
		suffix = " ..."
	}
	log.Debugf("%s: %s%s", label, hex.EncodeToString(data[:n]), suffix)
}
