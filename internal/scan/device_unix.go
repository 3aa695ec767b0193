//go:build unix

package scan

import (
	"io/fs"
	"syscall"
)

// deviceID returns the device a file lives on.
func deviceID(info fs.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(stat.Dev), true
}
