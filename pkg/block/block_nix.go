// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package block

import (
	"os"

	"golang.org/x/sys/unix"
)

// openDirect opens path for read-write with O_DIRECT so the kernel page
// cache is bypassed, per spec section 4.1 and section 6 ("uncached
// direct-I/O mode").
func openDirect(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_DIRECT, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
