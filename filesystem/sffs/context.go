package sffs

import (
	"fmt"

	"github.com/mejjete/sffs/backend"
	"github.com/mejjete/sffs/util/timestamp"
	"github.com/sirupsen/logrus"
)

// Context is a single mounted SFFS volume: its Device, the in-memory
// superblock, a scratch buffer sized to one block for operations that need a
// throwaway read/modify/write target, and a log sink. There is no
// process-global state; every operation takes a *Context explicitly
// (spec.md §5, "Concurrency & Resource Model").
type Context struct {
	dev *Device
	sb  *Superblock
	// scratch is reused by operations that need a single block-sized
	// buffer (bitmap test-and-set). It is not safe for concurrent use; see
	// Non-goals.
	scratch []byte
	log     *logrus.Logger
}

// Mount opens storage as an SFFS volume: it reads and validates the
// superblock at SuperblockOffset and returns a ready Context.
func Mount(storage backend.Storage) (*Context, error) {
	st, err := storage.Stat()
	if err != nil {
		return nil, newErr(KindDevStat, "mount", err)
	}
	if st.Size() < SuperblockOffset+SuperblockSize {
		return nil, newErr(KindInvArg, "mount", fmt.Errorf("backing storage is %d bytes, too small for a superblock", st.Size()))
	}

	raw := make([]byte, SuperblockSize)
	if n, err := storage.ReadAt(raw, SuperblockOffset); err != nil || n != len(raw) {
		if err == nil {
			err = fmt.Errorf("short read: got %d bytes, want %d", n, len(raw))
		}
		return nil, newErr(KindDevRead, "mount", err)
	}

	sb, err := superblockFromBytes(raw)
	if err != nil {
		return nil, newErr(KindFs, "mount", err)
	}

	dev, err := NewDevice(storage, sb.BlockSize)
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		dev:     dev,
		sb:      sb,
		scratch: make([]byte, sb.BlockSize),
		log:     newLogSink(),
	}
	ctx.log.WithFields(map[string]interface{}{
		"op":         "mount",
		"block_size": sb.BlockSize,
		"inodes":     sb.TotalInodes,
	}).Debug("volume mounted")
	return ctx, nil
}

// Unmount writes the current in-memory superblock back to disk and forces a
// durable flush. The superblock is otherwise write-back only at Statfs
// (spec.md §5).
func (c *Context) Unmount() error {
	c.sb.WriteTime = timestamp.GetTime()
	if err := c.writeSuperblock(); err != nil {
		return err
	}
	if err := c.dev.Sync(); err != nil {
		return newErr(KindDevWrite, "unmount", err)
	}
	c.log.Debug("volume unmounted")
	return nil
}

// Statfs flushes the in-memory superblock to disk (without forcing a
// durable sync) and returns a copy of it for inspection.
func (c *Context) Statfs() (Superblock, error) {
	c.sb.WriteTime = timestamp.GetTime()
	if err := c.writeSuperblock(); err != nil {
		return Superblock{}, err
	}
	return *c.sb, nil
}

func (c *Context) writeSuperblock() error {
	raw := c.sb.toBytes()
	w, err := c.dev.storage.Writable()
	if err != nil {
		return newErr(KindDevWrite, "write_superblock", err)
	}
	if _, err := w.WriteAt(raw, SuperblockOffset); err != nil {
		return newErr(KindDevWrite, "write_superblock", err)
	}
	return nil
}
