package sffs

import (
	"encoding/binary"
	"fmt"

	"github.com/mejjete/sffs/util/timestamp"
)

// fileType is the subset of mode bits identifying the kind of object an
// inode describes (spec.md §6).
type fileType uint16

const (
	typeMask fileType = 0170000

	TypeFIFO    fileType = 0010000
	TypeChar    fileType = 0020000
	TypeDir     fileType = 0040000
	TypeBlock   fileType = 0060000
	TypeRegular fileType = 0100000
	TypeSymlink fileType = 0120000
	TypeSocket  fileType = 0140000
)

const (
	permOwnerRead  uint16 = 0400
	permOwnerWrite uint16 = 0200
	permOwnerExec  uint16 = 0100
	permGroupRead  uint16 = 0040
	permGroupWrite uint16 = 0020
	permGroupExec  uint16 = 0010
	permOtherRead  uint16 = 0004
	permOtherWrite uint16 = 0002
	permOtherExec  uint16 = 0001
	permMask       uint16 = 0777
)

// InodeEntry is a GIT primary slot: fixed header plus an inline array of
// InlineBlockCount block pointers. Files whose block count exceeds
// InlineBlockCount spill into a chain of supplemental inode-list entries
// reached via Next (spec.md §4.4).
type InodeEntry struct {
	ID            uint32
	Next          uint32 // first supplemental inode-list entry, 0 if none
	ListSize      uint32 // number of list entries, this primary entry included
	LastEntry     uint32 // id of the tail entry (ID itself when none chained), for O(1) append
	UID           uint32
	GID           uint32
	Mode          uint16
	LinkCount     uint16
	Flags         uint32
	BlocksCount   uint32 // number of data blocks actually allocated
	ByteRemainder uint32 // bytes used in the final block
	ATime         uint32
	MTime         uint32
	CTime         uint32
	CrTime        uint32
	Blocks        [InlineBlockCount]uint32
}

// listEntry is a supplemental inode-list entry: same GIT slot size as an
// InodeEntry, but holding only chain linkage and a flat array of
// SupplementalBlockCount block pointers.
type listEntry struct {
	ID     uint32
	Next   uint32
	Blocks [SupplementalBlockCount]uint32
}

func (ie *InodeEntry) fileType() fileType {
	return fileType(ie.Mode) & typeMask
}

// IsDir reports whether the inode describes a directory.
func (ie *InodeEntry) IsDir() bool {
	return ie.fileType() == TypeDir
}

func (ie *InodeEntry) toBytes() []byte {
	b := make([]byte, inodeEntrySize)
	binary.LittleEndian.PutUint32(b[0x00:0x04], ie.ID)
	binary.LittleEndian.PutUint32(b[0x04:0x08], ie.Next)
	binary.LittleEndian.PutUint32(b[0x08:0x0c], ie.ListSize)
	binary.LittleEndian.PutUint32(b[0x0c:0x10], ie.LastEntry)
	binary.LittleEndian.PutUint32(b[0x10:0x14], ie.UID)
	binary.LittleEndian.PutUint32(b[0x14:0x18], ie.GID)
	binary.LittleEndian.PutUint32(b[0x18:0x1c], ie.Flags)
	binary.LittleEndian.PutUint32(b[0x1c:0x20], ie.BlocksCount)
	binary.LittleEndian.PutUint32(b[0x20:0x24], ie.ByteRemainder)
	binary.LittleEndian.PutUint16(b[0x24:0x26], ie.Mode)
	binary.LittleEndian.PutUint16(b[0x26:0x28], ie.LinkCount)
	binary.LittleEndian.PutUint32(b[0x28:0x2c], ie.ATime)
	binary.LittleEndian.PutUint32(b[0x2c:0x30], ie.MTime)
	binary.LittleEndian.PutUint32(b[0x30:0x34], ie.CTime)
	binary.LittleEndian.PutUint32(b[0x34:0x38], ie.CrTime)
	for i, blk := range ie.Blocks {
		off := inodeHeaderSize + 4*i
		binary.LittleEndian.PutUint32(b[off:off+4], blk)
	}
	return b
}

func inodeEntryFromBytes(b []byte) (*InodeEntry, error) {
	if len(b) != inodeEntrySize {
		return nil, fmt.Errorf("inode entry record is %d bytes, want %d", len(b), inodeEntrySize)
	}
	ie := &InodeEntry{
		ID:            binary.LittleEndian.Uint32(b[0x00:0x04]),
		Next:          binary.LittleEndian.Uint32(b[0x04:0x08]),
		ListSize:      binary.LittleEndian.Uint32(b[0x08:0x0c]),
		LastEntry:     binary.LittleEndian.Uint32(b[0x0c:0x10]),
		UID:           binary.LittleEndian.Uint32(b[0x10:0x14]),
		GID:           binary.LittleEndian.Uint32(b[0x14:0x18]),
		Flags:         binary.LittleEndian.Uint32(b[0x18:0x1c]),
		BlocksCount:   binary.LittleEndian.Uint32(b[0x1c:0x20]),
		ByteRemainder: binary.LittleEndian.Uint32(b[0x20:0x24]),
		Mode:          binary.LittleEndian.Uint16(b[0x24:0x26]),
		LinkCount:     binary.LittleEndian.Uint16(b[0x26:0x28]),
		ATime:         binary.LittleEndian.Uint32(b[0x28:0x2c]),
		MTime:         binary.LittleEndian.Uint32(b[0x2c:0x30]),
		CTime:         binary.LittleEndian.Uint32(b[0x30:0x34]),
		CrTime:        binary.LittleEndian.Uint32(b[0x34:0x38]),
	}
	for i := range ie.Blocks {
		off := inodeHeaderSize + 4*i
		ie.Blocks[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	return ie, nil
}

func (le *listEntry) toBytes() []byte {
	b := make([]byte, inodeEntrySize)
	binary.LittleEndian.PutUint32(b[0x00:0x04], le.ID)
	binary.LittleEndian.PutUint32(b[0x04:0x08], le.Next)
	for i, blk := range le.Blocks {
		off := listEntryHeaderSize + 4*i
		binary.LittleEndian.PutUint32(b[off:off+4], blk)
	}
	return b
}

func listEntryFromBytes(b []byte) (*listEntry, error) {
	if len(b) != inodeEntrySize {
		return nil, fmt.Errorf("inode-list entry record is %d bytes, want %d", len(b), inodeEntrySize)
	}
	le := &listEntry{
		ID:   binary.LittleEndian.Uint32(b[0x00:0x04]),
		Next: binary.LittleEndian.Uint32(b[0x04:0x08]),
	}
	for i := range le.Blocks {
		off := listEntryHeaderSize + 4*i
		le.Blocks[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	return le, nil
}

// gitSlotOffset returns the byte offset of GIT slot id within the volume.
func (c *Context) gitSlotOffset(id uint32) uint64 {
	return c.sb.GITStart*uint64(c.sb.BlockSize) + uint64(id)*uint64(inodeEntrySize)
}

// readSlot reads the raw inodeEntrySize-byte record for GIT slot id,
// regardless of whether it currently holds a primary or supplemental entry.
func (c *Context) readSlot(id uint32) ([]byte, error) {
	if id >= c.sb.TotalInodes {
		return nil, newErr(KindInvArg, "read_slot", fmt.Errorf("inode id %d exceeds %d total inodes", id, c.sb.TotalInodes))
	}
	off := c.gitSlotOffset(id)
	blk := off / uint64(c.sb.BlockSize)
	within := off % uint64(c.sb.BlockSize)
	raw, err := c.dev.ReadDataBlock(blk)
	if err != nil {
		return nil, err
	}
	if within+uint64(inodeEntrySize) > uint64(len(raw)) {
		return nil, newErr(KindFs, "read_slot", fmt.Errorf("GIT slot %d crosses a block boundary: unsupported layout", id))
	}
	return raw[within : within+uint64(inodeEntrySize)], nil
}

func (c *Context) writeSlot(id uint32, rec []byte) error {
	if id >= c.sb.TotalInodes {
		return newErr(KindInvArg, "write_slot", fmt.Errorf("inode id %d exceeds %d total inodes", id, c.sb.TotalInodes))
	}
	off := c.gitSlotOffset(id)
	blk := off / uint64(c.sb.BlockSize)
	within := off % uint64(c.sb.BlockSize)
	raw, err := c.dev.ReadDataBlock(blk)
	if err != nil {
		return err
	}
	if within+uint64(len(rec)) > uint64(len(raw)) {
		return newErr(KindFs, "write_slot", fmt.Errorf("GIT slot %d crosses a block boundary: unsupported layout", id))
	}
	copy(raw[within:within+uint64(len(rec))], rec)
	return c.dev.WriteDataBlock(blk, raw)
}

// ReadInode loads the primary inode entry identified by id.
func (c *Context) ReadInode(id uint32) (*InodeEntry, error) {
	set, err := c.checkGITBM(id)
	if err != nil {
		return nil, err
	}
	if !set {
		return nil, newErr(KindNoEnt, "read_inode", fmt.Errorf("inode %d is not allocated", id))
	}
	rec, err := c.readSlot(id)
	if err != nil {
		return nil, err
	}
	ie, err := inodeEntryFromBytes(rec)
	if err != nil {
		return nil, newErr(KindFs, "read_inode", err)
	}
	return ie, nil
}

// WriteInode persists ie to its GIT slot.
func (c *Context) WriteInode(ie *InodeEntry) error {
	return c.writeSlot(ie.ID, ie.toBytes())
}

func (c *Context) readListEntry(id uint32) (*listEntry, error) {
	rec, err := c.readSlot(id)
	if err != nil {
		return nil, err
	}
	le, err := listEntryFromBytes(rec)
	if err != nil {
		return nil, newErr(KindFs, "read_list_entry", err)
	}
	return le, nil
}

func (c *Context) writeListEntry(le *listEntry) error {
	return c.writeSlot(le.ID, le.toBytes())
}

// AllocInode reserves a free GIT slot, writes a fresh primary entry into it
// and returns it. mode carries the object's type and permission bits.
func (c *Context) AllocInode(mode uint16, uid, gid uint32) (*InodeEntry, error) {
	if c.sb.FreeInodes == 0 {
		return nil, newErr(KindNoSpc, "alloc_inode", fmt.Errorf("no free inodes"))
	}
	id, err := c.scanFreeGITSlot()
	if err != nil {
		return nil, err
	}
	if err := c.setGITBM(id); err != nil {
		return nil, err
	}
	now := uint32(timestamp.GetTime().Unix())
	ie := &InodeEntry{
		ID:        id,
		ListSize:  1,
		LastEntry: id,
		UID:       uid,
		GID:       gid,
		Mode:      mode,
		LinkCount: 1,
		ATime:     now,
		MTime:     now,
		CTime:     now,
		CrTime:    now,
	}
	if err := c.WriteInode(ie); err != nil {
		_ = c.unsetGITBM(id)
		return nil, err
	}
	c.sb.FreeInodes--
	c.log.WithFields(map[string]interface{}{"op": "alloc_inode", "id": id}).Debug("inode allocated")
	return ie, nil
}

// scanFreeGITSlot finds the lowest-numbered free GIT slot at or above
// ReservedInodes.
func (c *Context) scanFreeGITSlot() (uint32, error) {
	for id := c.sb.ReservedInodes; id < c.sb.TotalInodes; id++ {
		set, err := c.checkGITBM(id)
		if err != nil {
			return 0, err
		}
		if !set {
			return id, nil
		}
	}
	return 0, newErr(KindNoSpc, "scan_free_git_slot", fmt.Errorf("no free GIT slot despite free_inodes=%d", c.sb.FreeInodes))
}

// AllocInodeList grows ie's linked supplemental list by size entries,
// chained after its current tail, and returns the first new entry. The
// allocator calls this once an inode's inline Blocks array and every
// existing supplemental entry are full (spec.md §4.4).
func (c *Context) AllocInodeList(ie *InodeEntry, size uint32) (*listEntry, error) {
	if size == 0 {
		return nil, newErr(KindInvArg, "alloc_inode_list", fmt.Errorf("size must be positive"))
	}
	if c.sb.MaxInodeListLen != 0 && ie.ListSize+size > c.sb.MaxInodeListLen {
		return nil, newErr(KindNoSpc, "alloc_inode_list", fmt.Errorf("inode %d's list size %d plus %d would exceed the maximum %d", ie.ID, ie.ListSize, size, c.sb.MaxInodeListLen))
	}
	if size > c.sb.FreeInodes {
		return nil, newErr(KindNoSpc, "alloc_inode_list", fmt.Errorf("%d free inodes, need %d", c.sb.FreeInodes, size))
	}

	ids, err := c.pickInodeListIDs(ie.LastEntry, size)
	if err != nil {
		return nil, err
	}

	entries := make([]*listEntry, len(ids))
	for i, id := range ids {
		if err := c.setGITBM(id); err != nil {
			for _, done := range ids[:i] {
				_ = c.unsetGITBM(done)
			}
			return nil, err
		}
		next := uint32(0)
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		le := &listEntry{ID: id, Next: next}
		if err := c.writeListEntry(le); err != nil {
			for _, done := range ids[:i+1] {
				_ = c.unsetGITBM(done)
			}
			return nil, err
		}
		entries[i] = le
	}
	c.sb.FreeInodes -= size

	if ie.Next == 0 {
		ie.Next = ids[0]
	} else {
		tail, err := c.readListEntry(ie.LastEntry)
		if err != nil {
			return nil, err
		}
		tail.Next = ids[0]
		if err := c.writeListEntry(tail); err != nil {
			return nil, err
		}
	}
	ie.LastEntry = ids[len(ids)-1]
	ie.ListSize += size
	if err := c.WriteInode(ie); err != nil {
		return nil, err
	}
	return entries[0], nil
}

// pickInodeListIDs chooses size GIT slot ids for a supplemental-list growth
// step (spec.md §4.4): a sequential attempt right after tail, the current
// tail entry's id, falling back to the first size free ids found by a scan
// from the start of the GIT.
func (c *Context) pickInodeListIDs(tail uint32, size uint32) ([]uint32, error) {
	if uint64(tail)+uint64(size) < uint64(c.sb.TotalInodes) {
		sequential := true
		for i := uint32(1); i <= size; i++ {
			set, err := c.checkGITBM(tail + i)
			if err != nil {
				return nil, err
			}
			if set {
				sequential = false
				break
			}
		}
		if sequential {
			ids := make([]uint32, size)
			for i := uint32(0); i < size; i++ {
				ids[i] = tail + 1 + i
			}
			return ids, nil
		}
	}

	ids := make([]uint32, 0, size)
	for id := uint32(0); id < c.sb.TotalInodes && uint32(len(ids)) < size; id++ {
		set, err := c.checkGITBM(id)
		if err != nil {
			return nil, err
		}
		if !set {
			ids = append(ids, id)
		}
	}
	if uint32(len(ids)) < size {
		return nil, newErr(KindNoSpc, "alloc_inode_list", fmt.Errorf("only %d free GIT slots, need %d", len(ids), size))
	}
	return ids, nil
}

// FreeInode releases id's GIT slot and every supplemental entry chained from
// it, and returns the block ids that were referenced so the caller can
// release them from the data bitmap too.
func (c *Context) FreeInode(id uint32) ([]uint32, error) {
	ie, err := c.ReadInode(id)
	if err != nil {
		return nil, err
	}
	var blocks []uint32
	for _, b := range ie.Blocks {
		if b != 0 {
			blocks = append(blocks, b)
		}
	}
	next := ie.Next
	for next != 0 {
		le, err := c.readListEntry(next)
		if err != nil {
			return nil, err
		}
		for _, b := range le.Blocks {
			if b != 0 {
				blocks = append(blocks, b)
			}
		}
		if err := c.unsetGITBM(next); err != nil {
			return nil, err
		}
		c.sb.FreeInodes++
		next = le.Next
	}
	if err := c.unsetGITBM(id); err != nil {
		return nil, err
	}
	c.sb.FreeInodes++
	return blocks, nil
}
