package sffs

import (
	"fmt"

	"github.com/mejjete/sffs/util/bitmap"
)

// readBitmapBlock loads the single bitmap block that covers bit index within
// a region starting at regionStart (in blocks). SFFS bitmaps are one bit per
// data block / GIT slot, packed across consecutive blocks; bitsPerBlock is
// 8*BlockSize. The raw transfer lands in Context.scratch rather than a
// freshly allocated buffer (spec.md §4.2: "all bitmap mutations go through a
// single per-context scratch block buffer").
func (c *Context) readBitmapBlock(regionStart uint64, bit int) (*bitmap.Bitmap, int, error) {
	bitsPerBlock := int(c.sb.BlockSize) * 8
	blkOff := bit / bitsPerBlock
	localBit := bit % bitsPerBlock
	if err := c.dev.ReadBlocks(regionStart+uint64(blkOff), 1, c.scratch); err != nil {
		return nil, 0, err
	}
	return bitmap.FromBytes(c.scratch), localBit, nil
}

func (c *Context) writeBitmapBlock(regionStart uint64, bit int, bm *bitmap.Bitmap) error {
	bitsPerBlock := int(c.sb.BlockSize) * 8
	blkOff := bit / bitsPerBlock
	copy(c.scratch, bm.ToBytes())
	return c.dev.WriteBlocks(regionStart+uint64(blkOff), 1, c.scratch)
}

// checkDataBM reports whether data block index (0-based within the data
// region) is marked allocated.
func (c *Context) checkDataBM(index uint64) (bool, error) {
	if index >= c.sb.TotalDataBlocks {
		return false, newErr(KindInvArg, "check_data_bm", fmt.Errorf("block index %d exceeds %d total data blocks", index, c.sb.TotalDataBlocks))
	}
	bm, local, err := c.readBitmapBlock(c.sb.DataBitmapStart, int(index))
	if err != nil {
		return false, err
	}
	return bm.IsSet(local)
}

// setDataBM marks data block index allocated. Setting an already-set bit is
// an on-disk invariant violation: it means the allocator's free count and
// the bitmap have drifted apart.
func (c *Context) setDataBM(index uint64) error {
	if index >= c.sb.TotalDataBlocks {
		return newErr(KindInvArg, "set_data_bm", fmt.Errorf("block index %d exceeds %d total data blocks", index, c.sb.TotalDataBlocks))
	}
	bm, local, err := c.readBitmapBlock(c.sb.DataBitmapStart, int(index))
	if err != nil {
		return err
	}
	set, err := bm.IsSet(local)
	if err != nil {
		return newErr(KindFs, "set_data_bm", err)
	}
	if set {
		return newErr(KindFs, "set_data_bm", fmt.Errorf("data block %d already allocated", index))
	}
	if err := bm.Set(local); err != nil {
		return newErr(KindFs, "set_data_bm", err)
	}
	return c.writeBitmapBlock(c.sb.DataBitmapStart, int(index), bm)
}

// unsetDataBM marks data block index free.
func (c *Context) unsetDataBM(index uint64) error {
	if index >= c.sb.TotalDataBlocks {
		return newErr(KindInvArg, "unset_data_bm", fmt.Errorf("block index %d exceeds %d total data blocks", index, c.sb.TotalDataBlocks))
	}
	bm, local, err := c.readBitmapBlock(c.sb.DataBitmapStart, int(index))
	if err != nil {
		return err
	}
	set, err := bm.IsSet(local)
	if err != nil {
		return newErr(KindFs, "unset_data_bm", err)
	}
	if !set {
		return newErr(KindFs, "unset_data_bm", fmt.Errorf("data block %d already free", index))
	}
	if err := bm.Clear(local); err != nil {
		return newErr(KindFs, "unset_data_bm", err)
	}
	return c.writeBitmapBlock(c.sb.DataBitmapStart, int(index), bm)
}

// checkGITBM reports whether GIT slot index is marked allocated.
func (c *Context) checkGITBM(index uint32) (bool, error) {
	if index >= c.sb.TotalInodes {
		return false, newErr(KindInvArg, "check_git_bm", fmt.Errorf("inode index %d exceeds %d total inodes", index, c.sb.TotalInodes))
	}
	bm, local, err := c.readBitmapBlock(c.sb.GITBitmapStart, int(index))
	if err != nil {
		return false, err
	}
	return bm.IsSet(local)
}

// setGITBM marks GIT slot index allocated.
func (c *Context) setGITBM(index uint32) error {
	if index >= c.sb.TotalInodes {
		return newErr(KindInvArg, "set_git_bm", fmt.Errorf("inode index %d exceeds %d total inodes", index, c.sb.TotalInodes))
	}
	bm, local, err := c.readBitmapBlock(c.sb.GITBitmapStart, int(index))
	if err != nil {
		return err
	}
	set, err := bm.IsSet(local)
	if err != nil {
		return newErr(KindFs, "set_git_bm", err)
	}
	if set {
		return newErr(KindFs, "set_git_bm", fmt.Errorf("inode slot %d already allocated", index))
	}
	if err := bm.Set(local); err != nil {
		return newErr(KindFs, "set_git_bm", err)
	}
	return c.writeBitmapBlock(c.sb.GITBitmapStart, int(index), bm)
}

// unsetGITBM marks GIT slot index free.
func (c *Context) unsetGITBM(index uint32) error {
	if index >= c.sb.TotalInodes {
		return newErr(KindInvArg, "unset_git_bm", fmt.Errorf("inode index %d exceeds %d total inodes", index, c.sb.TotalInodes))
	}
	bm, local, err := c.readBitmapBlock(c.sb.GITBitmapStart, int(index))
	if err != nil {
		return err
	}
	set, err := bm.IsSet(local)
	if err != nil {
		return newErr(KindFs, "unset_git_bm", err)
	}
	if !set {
		return newErr(KindFs, "unset_git_bm", fmt.Errorf("inode slot %d already free", index))
	}
	if err := bm.Clear(local); err != nil {
		return newErr(KindFs, "unset_git_bm", err)
	}
	return c.writeBitmapBlock(c.sb.GITBitmapStart, int(index), bm)
}

// groupFree reports whether the whole data-block group at groupIndex is
// free, testing it in a single 32-bit word read (spec.md §4.6, allocator
// phase 2).
func (c *Context) groupFree(groupIndex uint32) (bool, error) {
	bitsPerBlock := int(c.sb.BlockSize) * 8
	groupBit := int(groupIndex) * int(c.sb.BlocksPerGroup)
	bm, _, err := c.readBitmapBlock(c.sb.DataBitmapStart, groupBit)
	if err != nil {
		return false, err
	}
	localGroupBit := groupBit % bitsPerBlock
	word, err := bm.GroupWord(localGroupBit/32, 32)
	if err != nil {
		return false, newErr(KindFs, "group_free", err)
	}
	return word == 0, nil
}
