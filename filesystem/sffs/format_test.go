package sffs

import "testing"

func TestFormatDefaultParams(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	if c.sb.BlockSize != 4096 {
		t.Errorf("BlockSize = %d, want 4096", c.sb.BlockSize)
	}
	if c.sb.TotalInodes == 0 {
		t.Errorf("TotalInodes = 0")
	}
	want := c.sb.TotalInodes - c.sb.ReservedInodes - 1
	if c.sb.FreeInodes != want {
		t.Errorf("FreeInodes = %d, want %d (reserved slots + root consumed)", c.sb.FreeInodes, want)
	}
	if c.sb.DataBlocks == 0 {
		t.Errorf("DataBlocks = 0")
	}
	if c.sb.GroupCount == 0 {
		t.Errorf("GroupCount = 0")
	}
}

func TestFormatCustomBlockSize(t *testing.T) {
	c := testFormat(t, testVolumeSize, &Params{BlockSize: 1024})
	if c.sb.BlockSize != 1024 {
		t.Errorf("BlockSize = %d, want 1024", c.sb.BlockSize)
	}
}

func TestFormatInvalidBlockSize(t *testing.T) {
	f := testCreateEmptyFile(t, testVolumeSize)
	_, err := Format(mustFileBackend(f), testVolumeSize, &Params{BlockSize: 100})
	if err == nil {
		t.Fatalf("expected an error for a non-multiple-of-512 block size")
	}
}

func TestFormatTooSmall(t *testing.T) {
	f := testCreateEmptyFile(t, 8192)
	_, err := Format(mustFileBackend(f), 8192, nil)
	if err == nil {
		t.Fatalf("expected an error formatting an 8KB volume")
	}
}

func TestFormatRootDirectory(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	root, err := c.ReadInode(RootInodeID)
	if err != nil {
		t.Fatalf("ReadInode(root) failed: %v", err)
	}
	if !root.IsDir() {
		t.Errorf("root inode is not a directory")
	}
	self, err := c.LookupDirEntry(root, ".")
	if err != nil {
		t.Fatalf("lookup '.' failed: %v", err)
	}
	if self.Ino != root.ID {
		t.Errorf("'.' resolves to inode %d, want %d", self.Ino, root.ID)
	}
	parent, err := c.LookupDirEntry(root, "..")
	if err != nil {
		t.Fatalf("lookup '..' failed: %v", err)
	}
	if parent.Ino != root.ID {
		t.Errorf("'..' resolves to inode %d, want %d (root is its own parent)", parent.Ino, root.ID)
	}
}
