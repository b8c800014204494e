package sffs

import "testing"

func TestAllocInodeWriteRead(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	ie, err := c.AllocInode(uint16(TypeRegular)|permOwnerRead|permOwnerWrite, 1000, 1000)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	got, err := c.ReadInode(ie.ID)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if got.UID != 1000 || got.GID != 1000 {
		t.Errorf("UID/GID = %d/%d, want 1000/1000", got.UID, got.GID)
	}
	if !got.IsDir() && got.fileType() != TypeRegular {
		t.Errorf("fileType = %#o, want regular", got.fileType())
	}
}

func TestAllocInodeDecrementsFreeCount(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	before := c.sb.FreeInodes
	if _, err := c.AllocInode(uint16(TypeRegular), 0, 0); err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	if c.sb.FreeInodes != before-1 {
		t.Errorf("FreeInodes = %d, want %d", c.sb.FreeInodes, before-1)
	}
}

func TestAllocInodeListChains(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	ie, err := c.AllocInode(uint16(TypeRegular), 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	if ie.ListSize != 1 || ie.LastEntry != ie.ID {
		t.Fatalf("freshly allocated inode: ListSize=%d LastEntry=%d, want 1 and %d", ie.ListSize, ie.LastEntry, ie.ID)
	}
	le1, err := c.AllocInodeList(ie, 1)
	if err != nil {
		t.Fatalf("first AllocInodeList: %v", err)
	}
	if ie.Next != le1.ID || ie.LastEntry != le1.ID || ie.ListSize != 2 {
		t.Errorf("after first entry: Next=%d LastEntry=%d ListSize=%d", ie.Next, ie.LastEntry, ie.ListSize)
	}
	le2, err := c.AllocInodeList(ie, 1)
	if err != nil {
		t.Fatalf("second AllocInodeList: %v", err)
	}
	if ie.LastEntry != le2.ID || ie.ListSize != 3 {
		t.Errorf("after second entry: LastEntry=%d ListSize=%d", ie.LastEntry, ie.ListSize)
	}
	reread, err := c.readListEntry(le1.ID)
	if err != nil {
		t.Fatalf("readListEntry(first): %v", err)
	}
	if reread.Next != le2.ID {
		t.Errorf("first entry's Next = %d, want %d (second entry)", reread.Next, le2.ID)
	}
}

func TestFreeInodeReleasesBlocksAndSlots(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	ie, err := c.AllocInode(uint16(TypeRegular), 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	blks, err := c.AllocDataBlocks(ie, 3)
	if err != nil {
		t.Fatalf("AllocDataBlocks: %v", err)
	}
	freedBlocks, err := c.FreeInode(ie.ID)
	if err != nil {
		t.Fatalf("FreeInode: %v", err)
	}
	if len(freedBlocks) != len(blks) {
		t.Errorf("FreeInode returned %d blocks, want %d", len(freedBlocks), len(blks))
	}
	set, err := c.checkGITBM(ie.ID)
	if err != nil {
		t.Fatalf("checkGITBM: %v", err)
	}
	if set {
		t.Errorf("inode slot %d should be free after FreeInode", ie.ID)
	}
}
