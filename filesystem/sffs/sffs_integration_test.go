package sffs

import (
	"testing"

	"github.com/mejjete/sffs/backend/file"
)

// TestIntegrationFormatMountStatfsUnmount exercises the full lifecycle of a
// volume: format, remount by reopening the same backing file, statfs, and
// unmount, checking that free counts survive the round trip.
func TestIntegrationFormatMountStatfsUnmount(t *testing.T) {
	f := testCreateEmptyFile(t, testVolumeSize)
	c, err := Format(file.New(f, false), testVolumeSize, nil)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	child, err := c.AllocInode(uint16(TypeRegular), 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	root, err := c.ReadInode(RootInodeID)
	if err != nil {
		t.Fatalf("ReadInode(root): %v", err)
	}
	if err := c.AddDirEntry(root, "file", child.ID); err != nil {
		t.Fatalf("AddDirEntry: %v", err)
	}
	if _, err := c.AllocDataBlocks(child, 2); err != nil {
		t.Fatalf("AllocDataBlocks: %v", err)
	}

	freeInodesBefore := c.sb.FreeInodes
	freeBlocksBefore := c.sb.FreeDataBlocks

	if err := c.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	remounted, err := Mount(file.New(f, false))
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if remounted.sb.FreeInodes != freeInodesBefore {
		t.Errorf("FreeInodes after remount = %d, want %d", remounted.sb.FreeInodes, freeInodesBefore)
	}
	if remounted.sb.FreeDataBlocks != freeBlocksBefore {
		t.Errorf("FreeDataBlocks after remount = %d, want %d", remounted.sb.FreeDataBlocks, freeBlocksBefore)
	}

	de, err := remounted.LookupDirEntry(mustReadInode(t, remounted, RootInodeID), "file")
	if err != nil {
		t.Fatalf("LookupDirEntry after remount: %v", err)
	}
	if de.Ino != child.ID {
		t.Errorf("resolved inode %d after remount, want %d", de.Ino, child.ID)
	}

	stat, err := remounted.Statfs()
	if err != nil {
		t.Fatalf("Statfs: %v", err)
	}
	if stat.FreeInodes != freeInodesBefore {
		t.Errorf("Statfs().FreeInodes = %d, want %d", stat.FreeInodes, freeInodesBefore)
	}
}

// TestIntegrationInodeListGrowth drives a single file past InlineBlockCount
// blocks and checks the block-pointer resolver walks the supplemental chain
// correctly end to end.
func TestIntegrationInodeListGrowth(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	root, err := c.ReadInode(RootInodeID)
	if err != nil {
		t.Fatalf("ReadInode(root): %v", err)
	}
	big, err := c.AllocInode(uint16(TypeRegular), 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	if err := c.AddDirEntry(root, "big", big.ID); err != nil {
		t.Fatalf("AddDirEntry: %v", err)
	}

	grow := uint32(InlineBlockCount) + 2*uint32(SupplementalBlockCount) + 1
	blks, err := c.AllocDataBlocks(big, grow)
	if err != nil {
		t.Fatalf("AllocDataBlocks(%d): %v", grow, err)
	}
	for i, want := range blks {
		got, ok, err := c.GetDataBlockInfo(big, uint32(i), LookupRead)
		if err != nil {
			t.Fatalf("GetDataBlockInfo(%d): %v", i, err)
		}
		if !ok || got != want {
			t.Fatalf("GetDataBlockInfo(%d) = %d, want %d", i, got, want)
		}
	}
}

func mustReadInode(t *testing.T, c *Context, id uint32) *InodeEntry {
	t.Helper()
	ie, err := c.ReadInode(id)
	if err != nil {
		t.Fatalf("ReadInode(%d): %v", id, err)
	}
	return ie
}
