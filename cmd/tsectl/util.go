// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"time"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func nowUnix() int64 {
	return time.Now().Unix()
}
