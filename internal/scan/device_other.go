//go:build !unix

package scan

import "io/fs"

// deviceID is unavailable on this platform, so Xdev never prunes.
func deviceID(fs.FileInfo) (uint64, bool) {
	return 0, false
}
