package sffs

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Magic identifies an SFFS volume. It is spec.md's 0x53FF5346.
const Magic uint32 = 0x53FF5346

// SuperblockSize is the on-disk footprint of the superblock record, padded
// out within the block that contains byte offset 1024.
const SuperblockSize = 256

// SuperblockOffset is the fixed byte offset of the superblock within the
// volume, per spec.md §3.
const SuperblockOffset = 1024

// Inode entry geometry. inlineBlockAreaSize is defined equal to
// inodeHeaderSize (spec.md §3: "both equal to the size of the packed
// header"), so a primary entry and a supplemental entry occupy the same
// inodeEntrySize slot in the GIT.
const (
	inodeHeaderSize     = 64
	inlineBlockAreaSize = inodeHeaderSize
	inodeEntrySize      = inodeHeaderSize + inlineBlockAreaSize // 128
	listEntryHeaderSize = 8                                     // {inode_id, next_entry_id}

	// InlineBlockCount (P) is the number of block ids an inode's blks[]
	// array holds inline.
	InlineBlockCount = inlineBlockAreaSize / 4
	// SupplementalBlockCount (S) is the number of block ids one
	// supplemental inode-list entry holds.
	SupplementalBlockCount = (inodeEntrySize - listEntryHeaderSize) / 4
)

// DefaultInodeRatio is bytes of data per inode, used only at format time.
const DefaultInodeRatio = 131072

// DefaultBlocksPerGroup is the number of data blocks whose bitmap bits fit
// into a single 32-bit group word.
const DefaultBlocksPerGroup = 32

// DefaultReservedInodes reserves inode ids below which alloc_inode never
// scans. A freshly formatted volume reserves none: the root directory is
// inode 0 (spec.md §8 scenario 2), matching original_source/utils/sffs_mkfs.c
// leaving s_inodes_reserved zero-initialized.
const DefaultReservedInodes = 0

// Superblock holds the layout constants, free counts, and region pointers of
// a mounted SFFS volume. The in-memory copy is authoritative during an
// operation; write-back to disk happens only at Unmount and Statfs (spec.md
// §5, §7).
type Superblock struct {
	BlockSize       uint32
	TotalDataBlocks uint64
	FreeDataBlocks  uint64
	TotalInodes     uint32
	FreeInodes      uint32
	ReservedInodes  uint32
	BlocksPerGroup  uint32
	GroupCount      uint32
	FreeGroups      uint32
	InodeEntrySize  uint32
	MaxInodeListLen uint32
	MountTime       time.Time
	WriteTime       time.Time
	FeatureFlags    uint32
	PreallocFile    uint16
	PreallocDir     uint16

	DataBitmapStart  uint64
	DataBitmapBlocks uint64
	GITBitmapStart   uint64
	GITBitmapBlocks  uint64
	GITStart         uint64
	GITBlocks        uint64
	DataStart        uint64
	DataBlocks       uint64

	// UUID and VolumeLabel are additive over spec.md: a per-volume
	// identifier and descriptive label, stamped at format time and never
	// referenced by an invariant.
	UUID        uuid.UUID
	VolumeLabel string
}

// toBytes serializes the superblock into its fixed SuperblockSize record.
func (sb *Superblock) toBytes() []byte {
	b := make([]byte, SuperblockSize)
	binary.LittleEndian.PutUint32(b[0x00:0x04], Magic)
	binary.LittleEndian.PutUint32(b[0x04:0x08], sb.BlockSize)
	binary.LittleEndian.PutUint64(b[0x08:0x10], sb.TotalDataBlocks)
	binary.LittleEndian.PutUint64(b[0x10:0x18], sb.FreeDataBlocks)
	binary.LittleEndian.PutUint32(b[0x18:0x1c], sb.TotalInodes)
	binary.LittleEndian.PutUint32(b[0x1c:0x20], sb.FreeInodes)
	binary.LittleEndian.PutUint32(b[0x20:0x24], sb.ReservedInodes)
	binary.LittleEndian.PutUint32(b[0x24:0x28], sb.BlocksPerGroup)
	binary.LittleEndian.PutUint32(b[0x28:0x2c], sb.GroupCount)
	binary.LittleEndian.PutUint32(b[0x2c:0x30], sb.FreeGroups)
	binary.LittleEndian.PutUint32(b[0x30:0x34], sb.InodeEntrySize)
	binary.LittleEndian.PutUint32(b[0x34:0x38], sb.MaxInodeListLen)
	binary.LittleEndian.PutUint32(b[0x38:0x3c], uint32(sb.MountTime.Unix()))
	binary.LittleEndian.PutUint32(b[0x3c:0x40], uint32(sb.WriteTime.Unix()))
	binary.LittleEndian.PutUint32(b[0x40:0x44], sb.FeatureFlags)
	binary.LittleEndian.PutUint16(b[0x44:0x46], sb.PreallocFile)
	binary.LittleEndian.PutUint16(b[0x46:0x48], sb.PreallocDir)
	binary.LittleEndian.PutUint64(b[0x48:0x50], sb.DataBitmapStart)
	binary.LittleEndian.PutUint64(b[0x50:0x58], sb.DataBitmapBlocks)
	binary.LittleEndian.PutUint64(b[0x58:0x60], sb.GITBitmapStart)
	binary.LittleEndian.PutUint64(b[0x60:0x68], sb.GITBitmapBlocks)
	binary.LittleEndian.PutUint64(b[0x68:0x70], sb.GITStart)
	binary.LittleEndian.PutUint64(b[0x70:0x78], sb.GITBlocks)
	binary.LittleEndian.PutUint64(b[0x78:0x80], sb.DataStart)
	binary.LittleEndian.PutUint64(b[0x80:0x88], sb.DataBlocks)
	copy(b[0x88:0x98], sb.UUID[:])
	label := make([]byte, 16)
	copy(label, sb.VolumeLabel)
	copy(b[0x98:0xa8], label)
	return b
}

// superblockFromBytes parses a Superblock from its on-disk record and
// validates the magic number.
func superblockFromBytes(b []byte) (*Superblock, error) {
	if len(b) < SuperblockSize {
		return nil, fmt.Errorf("superblock record too short: %d bytes, need %d", len(b), SuperblockSize)
	}
	magic := binary.LittleEndian.Uint32(b[0x00:0x04])
	if magic != Magic {
		return nil, fmt.Errorf("bad magic %#x, expected %#x", magic, Magic)
	}
	sb := &Superblock{
		BlockSize:        binary.LittleEndian.Uint32(b[0x04:0x08]),
		TotalDataBlocks:  binary.LittleEndian.Uint64(b[0x08:0x10]),
		FreeDataBlocks:   binary.LittleEndian.Uint64(b[0x10:0x18]),
		TotalInodes:      binary.LittleEndian.Uint32(b[0x18:0x1c]),
		FreeInodes:       binary.LittleEndian.Uint32(b[0x1c:0x20]),
		ReservedInodes:   binary.LittleEndian.Uint32(b[0x20:0x24]),
		BlocksPerGroup:   binary.LittleEndian.Uint32(b[0x24:0x28]),
		GroupCount:       binary.LittleEndian.Uint32(b[0x28:0x2c]),
		FreeGroups:       binary.LittleEndian.Uint32(b[0x2c:0x30]),
		InodeEntrySize:   binary.LittleEndian.Uint32(b[0x30:0x34]),
		MaxInodeListLen:  binary.LittleEndian.Uint32(b[0x34:0x38]),
		MountTime:        time.Unix(int64(binary.LittleEndian.Uint32(b[0x38:0x3c])), 0).UTC(),
		WriteTime:        time.Unix(int64(binary.LittleEndian.Uint32(b[0x3c:0x40])), 0).UTC(),
		FeatureFlags:     binary.LittleEndian.Uint32(b[0x40:0x44]),
		PreallocFile:     binary.LittleEndian.Uint16(b[0x44:0x46]),
		PreallocDir:      binary.LittleEndian.Uint16(b[0x46:0x48]),
		DataBitmapStart:  binary.LittleEndian.Uint64(b[0x48:0x50]),
		DataBitmapBlocks: binary.LittleEndian.Uint64(b[0x50:0x58]),
		GITBitmapStart:   binary.LittleEndian.Uint64(b[0x58:0x60]),
		GITBitmapBlocks:  binary.LittleEndian.Uint64(b[0x60:0x68]),
		GITStart:         binary.LittleEndian.Uint64(b[0x68:0x70]),
		GITBlocks:        binary.LittleEndian.Uint64(b[0x70:0x78]),
		DataStart:        binary.LittleEndian.Uint64(b[0x78:0x80]),
		DataBlocks:       binary.LittleEndian.Uint64(b[0x80:0x88]),
	}
	copy(sb.UUID[:], b[0x88:0x98])
	label := b[0x98:0xa8]
	end := len(label)
	for i, c := range label {
		if c == 0 {
			end = i
			break
		}
	}
	sb.VolumeLabel = string(label[:end])
	return sb, nil
}

// equal reports whether two superblocks describe the same volume layout and
// free-space snapshot, ignoring mount and write times.
func (sb *Superblock) equal(o *Superblock) bool {
	if sb == nil || o == nil {
		return sb == o
	}
	a, b := *sb, *o
	a.MountTime, b.MountTime = time.Time{}, time.Time{}
	a.WriteTime, b.WriteTime = time.Time{}, time.Time{}
	return a == b
}
