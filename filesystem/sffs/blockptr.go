package sffs

import "fmt"

// BlockLookupFlag selects the resolution mode for GetDataBlockInfo.
type BlockLookupFlag int

const (
	// LookupRead fails with KindNoEnt when index has never been written.
	LookupRead BlockLookupFlag = iota
	// LookupExtend returns ok=false rather than an error when index has
	// never been written, so the allocator can tell "needs a new block"
	// from "out of range".
	LookupExtend
)

// GetDataBlockInfo resolves the index'th (0-based) data block of ie's file,
// walking the inline array and then the supplemental inode-list chain
// (spec.md §4.4). ok is false when the block has not been allocated yet and
// flag is LookupExtend; with LookupRead that case is a KindNoEnt error
// instead.
func (c *Context) GetDataBlockInfo(ie *InodeEntry, index uint32, flag BlockLookupFlag) (blk uint32, ok bool, err error) {
	if c.sb.MaxInodeListLen != 0 {
		// MaxInodeListLen counts the primary entry, so a capped file holds
		// its inline blocks plus MaxInodeListLen-1 supplemental entries.
		maxBlocks := uint32(InlineBlockCount) + (c.sb.MaxInodeListLen-1)*uint32(SupplementalBlockCount)
		if index >= maxBlocks {
			return 0, false, newErr(KindInvArg, "get_data_block_info", fmt.Errorf("block index %d exceeds the %d blocks a file may hold", index, maxBlocks))
		}
	}

	if index < uint32(InlineBlockCount) {
		blk = ie.Blocks[index]
		if blk == 0 {
			if flag == LookupRead {
				return 0, false, newErr(KindNoEnt, "get_data_block_info", fmt.Errorf("block index %d not allocated", index))
			}
			return 0, false, nil
		}
		return blk, true, nil
	}

	remaining := index - uint32(InlineBlockCount)
	entryID := ie.Next
	for {
		if entryID == 0 {
			if flag == LookupRead {
				return 0, false, newErr(KindNoEnt, "get_data_block_info", fmt.Errorf("block index %d not allocated", index))
			}
			return 0, false, nil
		}
		le, err := c.readListEntry(entryID)
		if err != nil {
			return 0, false, err
		}
		if remaining < uint32(SupplementalBlockCount) {
			blk = le.Blocks[remaining]
			if blk == 0 {
				if flag == LookupRead {
					return 0, false, newErr(KindNoEnt, "get_data_block_info", fmt.Errorf("block index %d not allocated", index))
				}
				return 0, false, nil
			}
			return blk, true, nil
		}
		remaining -= uint32(SupplementalBlockCount)
		entryID = le.Next
	}
}

// setDataBlockInfo writes blk into the index'th slot of ie's block-pointer
// structure, allocating a supplemental inode-list entry first if the chain
// does not yet reach that far. Used by the allocator's commit phase.
func (c *Context) setDataBlockInfo(ie *InodeEntry, index uint32, blk uint32) error {
	if index < uint32(InlineBlockCount) {
		ie.Blocks[index] = blk
		return c.WriteInode(ie)
	}

	remaining := index - uint32(InlineBlockCount)
	entryNum := remaining / uint32(SupplementalBlockCount)
	localIdx := remaining % uint32(SupplementalBlockCount)

	// Walk (or grow) the chain until we reach the entryNum'th supplemental
	// entry, then write blk into its localIdx'th slot.
	var entryID uint32
	for i := uint32(0); i <= entryNum; i++ {
		if i == 0 {
			entryID = ie.Next
		} else {
			le, err := c.readListEntry(entryID)
			if err != nil {
				return err
			}
			entryID = le.Next
		}
		if entryID == 0 {
			le, err := c.AllocInodeList(ie, 1)
			if err != nil {
				return err
			}
			entryID = le.ID
		}
	}

	le, err := c.readListEntry(entryID)
	if err != nil {
		return err
	}
	le.Blocks[localIdx] = blk
	return c.writeListEntry(le)
}
