package cmdutil

import "path/filepath"

// deviceFileName is the single well-known file every TSE exposes on its
// public mass-storage partition.
const deviceFileName = "TSE-IO.bin"

// DevicePath joins a user-supplied mount point with the well-known TSE
// command file name.
func DevicePath(mount string) string {
	return filepath.Join(mount, deviceFileName)
}
