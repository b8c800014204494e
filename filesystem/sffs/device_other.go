//go:build !(aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris)
// +build !aix,!darwin,!dragonfly,!freebsd,!linux,!netbsd,!openbsd,!solaris

package sffs

import "os"

// syncFile falls back to os.File.Sync on platforms without fdatasync.
func syncFile(f *os.File) error {
	return f.Sync()
}
