//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package sffs

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncFile durably flushes f's data (and, where the platform distinguishes
// them, metadata) to the backing device via fdatasync.
func syncFile(f *os.File) error {
	if err := unix.Fdatasync(int(f.Fd())); err != nil {
		return err
	}
	return nil
}
