package sffs

import (
	"fmt"
	"io"

	"github.com/mejjete/sffs/backend"
)

// Device maps SFFS block numbers onto byte offsets against a backend.Storage.
// It has no notion of inodes, bitmaps, or directories; it is the only layer
// that performs raw ReadAt/WriteAt.
type Device struct {
	storage   backend.Storage
	blockSize uint32
}

// NewDevice wraps storage as a Device addressing blocks of blockSize bytes.
func NewDevice(storage backend.Storage, blockSize uint32) (*Device, error) {
	if blockSize == 0 || blockSize%512 != 0 {
		return nil, newErr(KindInvBlk, "new_device", fmt.Errorf("block size %d is not a positive multiple of 512", blockSize))
	}
	return &Device{storage: storage, blockSize: blockSize}, nil
}

// BlockSize returns the device's fixed block size in bytes.
func (d *Device) BlockSize() uint32 {
	return d.blockSize
}

// ReadBlocks reads count blocks starting at blk into buf, which must be
// exactly count*BlockSize bytes.
func (d *Device) ReadBlocks(blk uint64, count int, buf []byte) error {
	if buf == nil {
		return newErr(KindInvArg, "read_blocks", fmt.Errorf("nil buffer"))
	}
	want := int(d.blockSize) * count
	if len(buf) != want {
		return newErr(KindInvArg, "read_blocks", fmt.Errorf("buffer is %d bytes, need %d", len(buf), want))
	}
	off := int64(blk) * int64(d.blockSize)
	n, err := d.storage.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return newErr(KindDevRead, "read_blocks", err)
	}
	if n != want {
		return newErr(KindDevRead, "read_blocks", fmt.Errorf("short read: got %d bytes, want %d", n, want))
	}
	return nil
}

// WriteBlocks writes buf, which must be exactly count*BlockSize bytes, to
// count blocks starting at blk, then flushes it durably (see Sync) before
// returning. Block 0 holds the boot area and superblock prefix and is never
// reachable from any inode (spec.md §3); writing to it is refused outright.
func (d *Device) WriteBlocks(blk uint64, count int, buf []byte) error {
	if blk == 0 {
		return newErr(KindInvArg, "write_blocks", fmt.Errorf("block 0 is reserved for the boot area and superblock"))
	}
	if buf == nil {
		return newErr(KindInvArg, "write_blocks", fmt.Errorf("nil buffer"))
	}
	want := int(d.blockSize) * count
	if len(buf) != want {
		return newErr(KindInvArg, "write_blocks", fmt.Errorf("buffer is %d bytes, need %d", len(buf), want))
	}
	w, err := d.storage.Writable()
	if err != nil {
		return newErr(KindDevWrite, "write_blocks", err)
	}
	off := int64(blk) * int64(d.blockSize)
	n, err := w.WriteAt(buf, off)
	if err != nil {
		return newErr(KindDevWrite, "write_blocks", err)
	}
	if n != want {
		return newErr(KindDevWrite, "write_blocks", fmt.Errorf("short write: wrote %d bytes, want %d", n, want))
	}
	if err := d.Sync(); err != nil {
		return newErr(KindDevWrite, "write_blocks", err)
	}
	return nil
}

// ReadDataBlock is a convenience wrapper reading exactly one block.
func (d *Device) ReadDataBlock(blk uint64) ([]byte, error) {
	buf := make([]byte, d.blockSize)
	if err := d.ReadBlocks(blk, 1, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteDataBlock is a convenience wrapper writing exactly one block.
func (d *Device) WriteDataBlock(blk uint64, buf []byte) error {
	return d.WriteBlocks(blk, 1, buf)
}

// Sync forces any buffered writes to stable storage. It is called after
// every WriteBlocks, and at the end of Format and Unmount after the
// superblock is rewritten. Statfs rewrites the superblock without calling it.
func (d *Device) Sync() error {
	f, err := d.storage.Sys()
	if err != nil || f == nil {
		return nil
	}
	return syncFile(f)
}

// readDataBlock reads the data block at index, a bitmap-relative offset
// into the data region (as stored in an inode's block pointers), translating
// it to an absolute device block via Superblock.DataStart. Block ids in the
// GIT or bitmap regions are already absolute device block numbers and go
// straight through Device.ReadDataBlock/WriteDataBlock instead.
func (c *Context) readDataBlock(index uint32) ([]byte, error) {
	return c.dev.ReadDataBlock(c.sb.DataStart + uint64(index))
}

// writeDataBlock writes buf to the data block at index (see readDataBlock).
func (c *Context) writeDataBlock(index uint32, buf []byte) error {
	return c.dev.WriteDataBlock(c.sb.DataStart+uint64(index), buf)
}
