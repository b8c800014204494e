package sffs

import (
	"errors"
	"testing"
)

func TestDataBitmapSetCheckUnset(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)

	set, err := c.checkDataBM(0)
	if err != nil {
		t.Fatalf("checkDataBM: %v", err)
	}
	if set {
		t.Fatalf("block 0 should start free")
	}

	if err := c.setDataBM(0); err != nil {
		t.Fatalf("setDataBM: %v", err)
	}
	set, err = c.checkDataBM(0)
	if err != nil {
		t.Fatalf("checkDataBM: %v", err)
	}
	if !set {
		t.Fatalf("block 0 should be set after setDataBM")
	}

	if err := c.unsetDataBM(0); err != nil {
		t.Fatalf("unsetDataBM: %v", err)
	}
	set, err = c.checkDataBM(0)
	if err != nil {
		t.Fatalf("checkDataBM: %v", err)
	}
	if set {
		t.Fatalf("block 0 should be free after unsetDataBM")
	}
}

func TestDataBitmapDoubleSetIsCorruption(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	if err := c.setDataBM(5); err != nil {
		t.Fatalf("setDataBM: %v", err)
	}
	err := c.setDataBM(5)
	if err == nil {
		t.Fatalf("expected an error double-setting block 5")
	}
	var ferr *Error
	if ok := errors.As(err, &ferr); !ok || ferr.Kind != KindFs {
		t.Errorf("expected KindFs, got %v", err)
	}
}

func TestDataBitmapDoubleUnsetIsCorruption(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	err := c.unsetDataBM(5)
	if err == nil {
		t.Fatalf("expected an error unsetting an already-free block")
	}
}

func TestGITBitmapSetCheckUnset(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	// slot 0 is the root, already set; pick an unused one.
	free := RootInodeID + 1
	set, err := c.checkGITBM(free)
	if err != nil {
		t.Fatalf("checkGITBM: %v", err)
	}
	if set {
		t.Fatalf("slot %d should start free", free)
	}
	if err := c.setGITBM(free); err != nil {
		t.Fatalf("setGITBM: %v", err)
	}
	if err := c.unsetGITBM(free); err != nil {
		t.Fatalf("unsetGITBM: %v", err)
	}
}

func TestGroupFree(t *testing.T) {
	c := testFormat(t, testVolumeSize, nil)
	free, err := c.groupFree(0)
	if err != nil {
		t.Fatalf("groupFree: %v", err)
	}
	if !free {
		t.Fatalf("group 0 should be entirely free on a fresh volume")
	}
	if err := c.setDataBM(0); err != nil {
		t.Fatalf("setDataBM: %v", err)
	}
	free, err = c.groupFree(0)
	if err != nil {
		t.Fatalf("groupFree: %v", err)
	}
	if free {
		t.Fatalf("group 0 should no longer be free after setting one of its bits")
	}
}
