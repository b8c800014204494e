package sffs

import "testing"

func TestAllocDataBlocksInline(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	ie, err := c.AllocInode(uint16(TypeRegular), 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	blks, err := c.AllocDataBlocks(ie, 4)
	if err != nil {
		t.Fatalf("AllocDataBlocks: %v", err)
	}
	if len(blks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(blks))
	}
	if ie.BlocksCount != 4 {
		t.Errorf("BlocksCount = %d, want 4", ie.BlocksCount)
	}
	for i, b := range blks {
		got, ok, err := c.GetDataBlockInfo(ie, uint32(i), LookupRead)
		if err != nil {
			t.Fatalf("GetDataBlockInfo(%d): %v", i, err)
		}
		if !ok || got != b {
			t.Errorf("GetDataBlockInfo(%d) = %d, want %d", i, got, b)
		}
	}
}

func TestAllocDataBlocksSpillsToSupplementalList(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	ie, err := c.AllocInode(uint16(TypeRegular), 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	total := uint32(InlineBlockCount) + uint32(SupplementalBlockCount) + 5
	blks, err := c.AllocDataBlocks(ie, total)
	if err != nil {
		t.Fatalf("AllocDataBlocks(%d): %v", total, err)
	}
	if uint32(len(blks)) != total {
		t.Fatalf("got %d blocks, want %d", len(blks), total)
	}
	// ListSize counts the primary entry itself (spec.md §3), so two
	// supplemental entries for P+S+5 blocks means ListSize == 3.
	if ie.ListSize < 3 {
		t.Errorf("ListSize = %d, want at least 3 (primary + 2 supplemental entries) for %d blocks", ie.ListSize, total)
	}
	last := total - 1
	got, ok, err := c.GetDataBlockInfo(ie, last, LookupRead)
	if err != nil {
		t.Fatalf("GetDataBlockInfo(%d): %v", last, err)
	}
	if !ok || got != blks[last] {
		t.Errorf("GetDataBlockInfo(%d) = %d, want %d", last, got, blks[last])
	}
}

func TestAllocDataBlocksExhaustion(t *testing.T) {
	c := testFormat(t, testVolumeSize, &Params{BlockSize: 1024})
	ie, err := c.AllocInode(uint16(TypeRegular), 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	_, err = c.AllocDataBlocks(ie, uint32(c.sb.FreeDataBlocks+1))
	if err == nil {
		t.Fatalf("expected a no-space error requesting more blocks than free")
	}
}

func TestAllocDataBlocksRefusesPastMaxInodeListLen(t *testing.T) {
	c := testFormat(t, testVolumeSize, &Params{BlockSize: 1024, MaxInodeListLen: 1})
	ie, err := c.AllocInode(uint16(TypeRegular), 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	beforeFree := c.sb.FreeDataBlocks
	// MaxInodeListLen=1 means the list may never exceed just its primary
	// entry (ListSize starts at 1), so any file growth past InlineBlockCount
	// needs a supplemental entry that alloc_inode_list must refuse before
	// AllocDataBlocks claims a single bitmap bit.
	over := uint32(InlineBlockCount) + 1
	_, err = c.AllocDataBlocks(ie, over)
	if err == nil {
		t.Fatalf("expected an error exceeding MaxInodeListLen")
	}
	if c.sb.FreeDataBlocks != beforeFree {
		t.Errorf("FreeDataBlocks = %d after failed alloc, want unchanged %d", c.sb.FreeDataBlocks, beforeFree)
	}
}
