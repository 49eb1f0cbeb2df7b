// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block implements the aligned direct-I/O adapter described in
// spec section 4.1: whole 8 KiB reads and writes at offset zero of the
// TSE command file, bypassing the page cache.
//
// The device implements command exchange as a memory-mapped "magic
// sector" that changes content on every read; the kernel's page cache
// would otherwise return stale bytes (see
// original_source/bdr_tse/msc_transport.py's _read_block comment).
package block

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
)

// Size is the fixed unit of I/O against the device file.
const Size = 8192

// DefaultAlignment is the buffer alignment the working buffer always
// uses; the filesystem's logical block size is not queried. 4096 covers
// every logical sector size in practice (512 and 4096).
const DefaultAlignment = 4096

// Device is a single open handle to the TSE command file. It owns an
// aligned 8 KiB buffer for the lifetime of the session.
type Device struct {
	f   *os.File
	buf []byte // aligned view, exactly Size bytes
	raw []byte // backing allocation; buf is a sub-slice of raw
}

// Open opens path read-write and allocates the aligned working buffer.
// On Linux the file is opened with O_DIRECT, and Open fails if the path
// does not admit direct I/O. On other platforms it is a plain
// read-write open that does not bypass the page cache (see
// block_other.go).
func Open(path string) (*Device, error) {
	f, err := openDirect(path)
	if err != nil {
		return nil, tseerr.Io(fmt.Sprintf("open %s", path), err)
	}
	raw := make([]byte, Size+DefaultAlignment)
	buf := alignTo(raw, DefaultAlignment)[:Size]
	return &Device{f: f, buf: buf, raw: raw}, nil
}

// WriteBlock writes exactly Size bytes to offset zero. Partial writes
// are reported as a fatal I/O error.
func (d *Device) WriteBlock(data []byte) error {
	if len(data) != Size {
		return tseerr.Framing(fmt.Sprintf("write_block requires exactly %d bytes, got %d", Size, len(data)))
	}
	copy(d.buf, data)
	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return tseerr.Io("seek before write", err)
	}
	n, err := d.f.Write(d.buf)
	if err != nil {
		return tseerr.Io("write block", err)
	}
	if n != Size {
		return tseerr.Io(fmt.Sprintf("short write: wrote %d of %d bytes", n, Size), nil)
	}
	return nil
}

// ReadBlock reads exactly Size bytes from offset zero and returns a
// fresh copy of the buffer contents.
func (d *Device) ReadBlock() ([]byte, error) {
	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return nil, tseerr.Io("seek before read", err)
	}
	n, err := d.f.Read(d.buf)
	if err != nil {
		return nil, tseerr.Io("read block", err)
	}
	if n != Size {
		return nil, tseerr.Io(fmt.Sprintf("short read: read %d of %d bytes", n, Size), nil)
	}
	out := make([]byte, Size)
	copy(out, d.buf)
	return out, nil
}

// Close releases the handle. Idempotent: closing twice is a no-op.
func (d *Device) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	d.buf = nil
	d.raw = nil
	if err != nil {
		return tseerr.Io("close device file", err)
	}
	return nil
}

// alignTo returns the sub-slice of buf starting at the first address
// that is a multiple of align.
func alignTo(buf []byte, align int) []byte {
	addr := uintptr(unsafe.Pointer(&buf[0]))
	rem := int(addr % uintptr(align))
	if rem == 0 {
		return buf
	}
	return buf[align-rem:]
}
