package sffs

import "fmt"

// AllocDataBlocks grows ie by count data blocks and appends their ids to its
// block-pointer structure (inline array, then supplemental inode-list
// entries, growing the chain as needed). The effective count actually
// allocated is count plus the superblock's preallocation hint for ie's type
// (file or directory); if free space can't cover the effective count the
// call falls back to the literal count, and fails with ErrNoSpc only if even
// that doesn't fit (spec.md §4.6). Allocation proceeds in three phases:
//
//  1. Extend in place: take every free block after ie's last allocated
//     block up to the end of that block's group, to favor contiguous
//     layout.
//  2. Whole-group allocation: consume one entirely-free group at a time
//     (cheap to find via Context.groupFree), taking every block in it.
//  3. Global bitmap scan: fall back to the first free bit anywhere in the
//     data bitmap, one block at a time.
//
// Data block 0 is never handed out: a block pointer of 0 means "not
// allocated" (see GetDataBlockInfo), so phase 2 skips group 0 and phase 3
// starts its scan at block 1.
//
// On any failure partway through, every block already marked in the bitmap
// during this call is unmarked again before returning, so a short allocation
// never leaves the bitmap and the inode's block count out of step.
func (c *Context) AllocDataBlocks(ie *InodeEntry, count uint32) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	if c.sb.FreeDataBlocks < uint64(count) {
		return nil, newErr(KindNoSpc, "alloc_data_blocks", fmt.Errorf("need %d blocks, only %d free", count, c.sb.FreeDataBlocks))
	}

	prealloc := uint32(c.sb.PreallocFile)
	if ie.IsDir() {
		prealloc = uint32(c.sb.PreallocDir)
	}
	effective := count + prealloc
	if effective < count || uint64(effective) > c.sb.FreeDataBlocks {
		effective = count
	}

	if err := c.growInodeList(ie, effective); err != nil {
		return nil, err
	}

	taken := make([]uint32, 0, effective)
	var takeErr error
	unwind := func() {
		for _, b := range taken {
			_ = c.unsetDataBM(uint64(b))
		}
	}

	take := func(index uint64) {
		if err := c.setDataBM(index); err != nil {
			if takeErr == nil {
				takeErr = err
			}
			return
		}
		taken = append(taken, uint32(index))
	}

	remaining := effective

	// Phase 1: extend in place from the block right after the file's
	// current last block (wherever that pointer actually lives). Every free
	// bit through the end of that block's group is collected, not only a
	// contiguous run: a hole earlier in the group doesn't stop the scan.
	if ie.BlocksCount > 0 {
		last, ok, err := c.GetDataBlockInfo(ie, ie.BlocksCount-1, LookupRead)
		if err != nil {
			return nil, err
		}
		if ok {
			groupEnd := (uint64(last)/uint64(c.sb.BlocksPerGroup) + 1) * uint64(c.sb.BlocksPerGroup)
			if groupEnd > c.sb.TotalDataBlocks {
				groupEnd = c.sb.TotalDataBlocks
			}
			for next := uint64(last) + 1; remaining > 0 && next < groupEnd; next++ {
				set, err := c.checkDataBM(next)
				if err != nil {
					unwind()
					return nil, err
				}
				if set {
					continue
				}
				take(next)
				remaining--
			}
		}
	}

	// Phase 2: whole free groups (group 0 holds data block 0 and is skipped).
	if remaining >= c.sb.BlocksPerGroup {
		for g := uint32(1); g < c.sb.GroupCount && remaining >= c.sb.BlocksPerGroup; g++ {
			free, err := c.groupFree(g)
			if err != nil {
				unwind()
				return nil, err
			}
			if !free {
				continue
			}
			base := uint64(g) * uint64(c.sb.BlocksPerGroup)
			for i := uint64(0); i < uint64(c.sb.BlocksPerGroup); i++ {
				take(base + i)
			}
			remaining -= c.sb.BlocksPerGroup
		}
	}

	// Phase 3: global scan, one block at a time, from data block 1.
	for remaining > 0 {
		found := false
		for b := uint64(1); b < c.sb.TotalDataBlocks; b++ {
			set, err := c.checkDataBM(b)
			if err != nil {
				unwind()
				return nil, err
			}
			if !set {
				take(b)
				remaining--
				found = true
				break
			}
		}
		if !found {
			unwind()
			return nil, newErr(KindFs, "alloc_data_blocks", fmt.Errorf("bitmap scan found no free block despite free_data_blocks=%d", c.sb.FreeDataBlocks))
		}
	}
	if takeErr != nil {
		unwind()
		return nil, takeErr
	}

	startIndex := ie.BlocksCount
	for i, b := range taken {
		if err := c.setDataBlockInfo(ie, startIndex+uint32(i), b); err != nil {
			unwind()
			return nil, err
		}
	}
	ie.BlocksCount += effective
	if err := c.WriteInode(ie); err != nil {
		ie.BlocksCount = startIndex
		unwind()
		return nil, err
	}
	c.sb.FreeDataBlocks -= uint64(effective)

	c.log.WithFields(map[string]interface{}{
		"op":        "alloc_data_blocks",
		"inode":     ie.ID,
		"requested": count,
		"allocated": effective,
	}).Debug("data blocks allocated")
	return taken, nil
}

// growInodeList ensures ie's block-pointer structure has room for at least
// need more blocks beyond BlocksCount, growing the supplemental list in one
// batch via AllocInodeList when its current inline-plus-supplemental
// capacity falls short (spec.md §4.6's inode-list growth step).
func (c *Context) growInodeList(ie *InodeEntry, need uint32) error {
	capacity := uint64(InlineBlockCount)
	if ie.ListSize > 1 {
		capacity += uint64(ie.ListSize-1) * uint64(SupplementalBlockCount)
	}
	have := capacity - uint64(ie.BlocksCount)
	if have >= uint64(need) {
		return nil
	}
	deficit := uint64(need) - have
	grow := uint32((deficit + uint64(SupplementalBlockCount) - 1) / uint64(SupplementalBlockCount))
	_, err := c.AllocInodeList(ie, grow)
	return err
}

// FreeDataBlocks releases blks from the data bitmap and credits them back to
// the free count. It does not touch ie's block-pointer structure; callers
// that shrink a file clear the relevant pointers themselves.
func (c *Context) FreeDataBlocks(blks []uint32) error {
	for _, b := range blks {
		if err := c.unsetDataBM(uint64(b)); err != nil {
			return err
		}
		c.sb.FreeDataBlocks++
	}
	return nil
}
