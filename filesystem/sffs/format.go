package sffs

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mejjete/sffs/backend"
	"github.com/mejjete/sffs/util/timestamp"
)

// Params tunes Format. Any zero field takes a computed or documented
// default, mirroring the teacher's optional-Params convention.
type Params struct {
	// UUID stamps the volume's identifier. A random v4 UUID is generated
	// if nil.
	UUID *uuid.UUID
	// VolumeLabel is copied into the superblock, truncated to 16 bytes.
	VolumeLabel string
	// BlockSize must be a multiple of 512; defaults to 4096.
	BlockSize uint32
	// InodeRatio is bytes of volume size per inode; defaults to
	// DefaultInodeRatio. Ignored if InodeCount is set.
	InodeRatio int64
	// InodeCount overrides the computed inode count when non-zero.
	InodeCount uint32
	// BlocksPerGroup overrides DefaultBlocksPerGroup when non-zero.
	BlocksPerGroup uint32
	// MaxInodeListLen caps the length of one inode's list, the primary
	// entry included (1 allows no supplemental entries); 0 means unbounded.
	MaxInodeListLen uint32
	PreallocFile    uint16
	PreallocDir     uint16
}

// Format lays out a fresh SFFS volume of size bytes on storage: it derives
// the four region sizes (data bitmap, GIT bitmap, GIT, data), zeroes the
// bitmaps, writes the superblock, and creates the root directory. It returns
// a ready Context for the new volume (spec.md §4.8).
func Format(storage backend.Storage, size int64, p *Params) (*Context, error) {
	if p == nil {
		p = &Params{}
	}
	blockSize := p.BlockSize
	if blockSize == 0 {
		blockSize = 4096
	}
	if blockSize%512 != 0 {
		return nil, newErr(KindInvBlk, "format", fmt.Errorf("block size %d is not a multiple of 512", blockSize))
	}
	if size <= 0 {
		return nil, newErr(KindInvArg, "format", fmt.Errorf("size %d must be positive", size))
	}

	totalBlocks := uint64(size) / uint64(blockSize)
	if totalBlocks < 16 {
		return nil, newErr(KindInit, "format", fmt.Errorf("volume of %d blocks is too small to hold superblock, bitmaps, GIT and a data region", totalBlocks))
	}

	blocksPerGroup := p.BlocksPerGroup
	if blocksPerGroup == 0 {
		blocksPerGroup = DefaultBlocksPerGroup
	}

	inodeRatio := p.InodeRatio
	if inodeRatio == 0 {
		inodeRatio = DefaultInodeRatio
	}
	totalInodes := p.InodeCount
	if totalInodes == 0 {
		computed := uint64(size) / uint64(inodeRatio)
		if computed < 16 {
			computed = 16
		}
		totalInodes = uint32(computed)
	}

	// The superblock record lives at byte offset SuperblockOffset; bitmaps
	// and GIT start in the first block past its end (block 1 for block
	// sizes of 2048 and up, block 2 for 1024, block 3 for 512), and data
	// fills the rest.
	sbEnd := (uint64(SuperblockOffset+SuperblockSize) + uint64(blockSize) - 1) / uint64(blockSize)
	gitBitmapBlocks := (uint64(totalInodes) + 8*uint64(blockSize) - 1) / (8 * uint64(blockSize))
	if gitBitmapBlocks == 0 {
		gitBitmapBlocks = 1
	}
	gitBlocks := (uint64(totalInodes)*uint64(inodeEntrySize) + uint64(blockSize) - 1) / uint64(blockSize)

	reservedBlocks := sbEnd + gitBitmapBlocks + gitBlocks
	if reservedBlocks+2 >= totalBlocks {
		return nil, newErr(KindInit, "format", fmt.Errorf("volume of %d blocks is too small for %d inodes", totalBlocks, totalInodes))
	}

	// Iterate once: the data bitmap's own size depends on how many data
	// blocks remain, which depends on the data bitmap's size. One pass is
	// enough since growing the bitmap by a block only ever removes a
	// handful of data blocks from the count it describes.
	dataBitmapBlocks := uint64(1)
	for {
		dataBlocks := totalBlocks - reservedBlocks - dataBitmapBlocks
		need := (dataBlocks + 8*uint64(blockSize) - 1) / (8 * uint64(blockSize))
		if need == 0 {
			need = 1
		}
		if need == dataBitmapBlocks {
			break
		}
		dataBitmapBlocks = need
	}
	dataBlocks := totalBlocks - reservedBlocks - dataBitmapBlocks
	if dataBlocks < uint64(blocksPerGroup) {
		return nil, newErr(KindInit, "format", fmt.Errorf("volume of %d blocks leaves only %d data blocks, less than one block group", totalBlocks, dataBlocks))
	}
	groupCount := uint32(dataBlocks / uint64(blocksPerGroup))

	fsuuid := p.UUID
	if fsuuid == nil {
		u, err := uuid.NewRandom()
		if err != nil {
			return nil, newErr(KindMemAlloc, "format", err)
		}
		fsuuid = &u
	}

	now := timestamp.GetTime()
	sb := &Superblock{
		BlockSize:        blockSize,
		TotalDataBlocks:  dataBlocks,
		FreeDataBlocks:   dataBlocks,
		TotalInodes:      totalInodes,
		FreeInodes:       totalInodes - DefaultReservedInodes,
		ReservedInodes:   DefaultReservedInodes,
		BlocksPerGroup:   blocksPerGroup,
		GroupCount:       groupCount,
		FreeGroups:       groupCount,
		InodeEntrySize:   inodeEntrySize,
		MaxInodeListLen:  p.MaxInodeListLen,
		MountTime:        now,
		WriteTime:        now,
		PreallocFile:     p.PreallocFile,
		PreallocDir:      p.PreallocDir,
		DataBitmapStart:  sbEnd,
		DataBitmapBlocks: dataBitmapBlocks,
		GITBitmapStart:   sbEnd + dataBitmapBlocks,
		GITBitmapBlocks:  gitBitmapBlocks,
		GITStart:         sbEnd + dataBitmapBlocks + gitBitmapBlocks,
		GITBlocks:        gitBlocks,
		DataStart:        reservedBlocks + dataBitmapBlocks,
		DataBlocks:       dataBlocks,
		UUID:             *fsuuid,
		VolumeLabel:      p.VolumeLabel,
	}

	dev, err := NewDevice(storage, blockSize)
	if err != nil {
		return nil, err
	}

	zero := make([]byte, blockSize)
	for i := uint64(0); i < dataBitmapBlocks; i++ {
		if err := dev.WriteDataBlock(sb.DataBitmapStart+i, zero); err != nil {
			return nil, err
		}
	}
	for i := uint64(0); i < gitBitmapBlocks; i++ {
		if err := dev.WriteDataBlock(sb.GITBitmapStart+i, zero); err != nil {
			return nil, err
		}
	}

	c := &Context{
		dev:     dev,
		sb:      sb,
		scratch: make([]byte, blockSize),
		log:     newLogSink(),
	}
	if err := c.writeSuperblock(); err != nil {
		return nil, err
	}

	root, err := c.AllocInode(uint16(TypeDir)|permOwnerRead|permOwnerWrite|permOwnerExec|permGroupRead|permGroupExec|permOtherRead|permOtherExec, 0, 0)
	if err != nil {
		return nil, err
	}
	if root.ID != RootInodeID {
		return nil, newErr(KindInit, "format", fmt.Errorf("root inode got id %d, expected %d: reserved-inode count is wrong", root.ID, RootInodeID))
	}
	root.LinkCount = 2
	if err := c.WriteInode(root); err != nil {
		return nil, err
	}
	if err := c.InitDirEntry(root, root); err != nil {
		return nil, err
	}

	if err := c.writeSuperblock(); err != nil {
		return nil, err
	}
	if err := dev.Sync(); err != nil {
		return nil, newErr(KindDevWrite, "format", err)
	}
	return c, nil
}

// RootInodeID is the fixed GIT slot id of the root directory: the first
// slot AllocInode ever hands out on a freshly formatted volume.
const RootInodeID uint32 = DefaultReservedInodes
