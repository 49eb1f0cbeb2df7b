// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package block

import (
	"os"
)

// openDirect is a plain read-write open on every non-Linux platform,
// Darwin included: no O_DIRECT, F_NOCACHE or other uncached mode is
// requested, so reads may be served from the page cache. It is kept
// separate so the Linux path can stay strict about requesting direct I/O.
func openDirect(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}
