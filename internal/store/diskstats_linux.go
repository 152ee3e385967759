//go:build linux

package store

import (
	"path/filepath"
	"syscall"
)

// diskStats returns the available and total bytes on the filesystem that
// holds path. A save directory that has not been created yet is measured on
// its nearest existing ancestor. Bavail is used rather than Bfree so the
// figure excludes root-reserved blocks.
func diskStats(path string) (avail, total uint64) {
	var st syscall.Statfs_t
	for {
		err := syscall.Statfs(path, &st)
		if err == nil {
			break
		}
		parent := filepath.Dir(path)
		if err != syscall.ENOENT || parent == path {
			return 0, 0
		}
		path = parent
	}
	bsize := uint64(st.Bsize)
	return st.Bavail * bsize, st.Blocks * bsize
}
