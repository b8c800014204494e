// Package backend abstracts the byte-addressable storage an SFFS volume is
// served from: a plain file, a block device, or a sub-range of either.
package backend

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

var (
	ErrIncorrectOpenMode = errors.New("volume image not open for write")
	ErrNotSuitable       = errors.New("backing storage is not suitable")
)

type File interface {
	fs.File
	io.ReaderAt
	io.Seeker
	io.Closer
}

type WritableFile interface {
	File
	io.WriterAt
}

// Storage is the byte-addressable backing store for a volume image. The
// Device layer (see the sffs package) maps block numbers onto ReadAt/WriteAt
// offsets against a Storage; Storage itself knows nothing about blocks.
type Storage interface {
	File
	// Sys exposes the underlying *os.File, when there is one, so the Device
	// layer can issue a durable-flush syscall after a write.
	Sys() (*os.File, error)
	// Writable returns a handle usable for WriteAt, or ErrIncorrectOpenMode
	// if the Storage was opened read-only.
	Writable() (WritableFile, error)
}
