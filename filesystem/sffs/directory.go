package sffs

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DirEntryHeaderSize is the fixed portion of a directory record: inode id
// (4 bytes), total record length (2 bytes), and name length (2 bytes),
// followed by the name itself, unterminated (spec.md §4.7).
const DirEntryHeaderSize = 8

// MaxDirEntryLength is the largest a single directory record may be.
const MaxDirEntryLength = 256

// MaxNameLength is the longest name a directory record can hold.
const MaxNameLength = MaxDirEntryLength - DirEntryHeaderSize

// DirEntry is one record in a directory's data blocks. A record with Ino==0
// and no name marks a free slot available for reuse (the untouched remainder
// of a block after its live entries); RecordLength lets a reader skip past
// it without needing one Read per candidate byte. Ino==0 on its own marks
// neither a free slot nor a scan terminator: the root directory's own "."
// and ".." records carry it whenever the volume reserves no inode ids
// (spec.md §8 scenario 2), so a reader must keep walking by RecordLength
// until the block is exhausted.
type DirEntry struct {
	Ino          uint32
	RecordLength uint16
	Name         string
}

func (de *DirEntry) neededLength() uint16 {
	return uint16(DirEntryHeaderSize + len(de.Name))
}

func (de *DirEntry) toBytes() []byte {
	b := make([]byte, de.RecordLength)
	binary.LittleEndian.PutUint32(b[0:4], de.Ino)
	binary.LittleEndian.PutUint16(b[4:6], de.RecordLength)
	binary.LittleEndian.PutUint16(b[6:8], uint16(len(de.Name)))
	copy(b[8:8+len(de.Name)], de.Name)
	return b
}

func dirEntryFromBytes(b []byte) (*DirEntry, error) {
	if len(b) < DirEntryHeaderSize {
		return nil, fmt.Errorf("directory record shorter than its %d byte header", DirEntryHeaderSize)
	}
	reclen := binary.LittleEndian.Uint16(b[4:6])
	namelen := binary.LittleEndian.Uint16(b[6:8])
	if int(reclen) > len(b) || int(DirEntryHeaderSize)+int(namelen) > int(reclen) {
		return nil, fmt.Errorf("directory record length %d inconsistent with name length %d", reclen, namelen)
	}
	return &DirEntry{
		Ino:          binary.LittleEndian.Uint32(b[0:4]),
		RecordLength: reclen,
		Name:         string(b[8 : 8+namelen]),
	}, nil
}

// InitDirEntry initializes dirIno's single data block with the "." and ".."
// bootstrap entries followed by a zero-ino terminator, per spec.md §4.7.
func (c *Context) InitDirEntry(dirIno, parentIno *InodeEntry) error {
	blk, _, err := c.GetDataBlockInfo(dirIno, 0, LookupExtend)
	if err != nil {
		return err
	}
	if blk == 0 {
		taken, err := c.AllocDataBlocks(dirIno, 1)
		if err != nil {
			return err
		}
		blk = taken[0]
	}

	buf := make([]byte, c.sb.BlockSize)
	dot := &DirEntry{Ino: dirIno.ID, Name: "."}
	dot.RecordLength = dot.neededLength()
	dotdot := &DirEntry{Ino: parentIno.ID, Name: ".."}
	dotdot.RecordLength = dotdot.neededLength()
	used := dot.RecordLength + dotdot.RecordLength
	term := &DirEntry{Ino: 0, RecordLength: uint16(c.sb.BlockSize) - used}

	copy(buf[0:dot.RecordLength], dot.toBytes())
	copy(buf[dot.RecordLength:used], dotdot.toBytes())
	copy(buf[used:], term.toBytes())

	return c.writeDataBlock(blk, buf)
}

// LookupDirEntry scans dirIno's data blocks for an entry named name and
// returns it. Returns a KindNoEnt error if no such entry exists.
func (c *Context) LookupDirEntry(dirIno *InodeEntry, name string) (*DirEntry, error) {
	nblocks := (dirIno.BlocksCount)
	for i := uint32(0); i < nblocks; i++ {
		blk, ok, err := c.GetDataBlockInfo(dirIno, i, LookupExtend)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		raw, err := c.readDataBlock(blk)
		if err != nil {
			return nil, err
		}
		off := 0
		for off < len(raw) {
			de, err := dirEntryFromBytes(raw[off:])
			if err != nil {
				return nil, newErr(KindFs, "lookup_dir_entry", err)
			}
			if de.Name != "" && de.Name == name {
				return de, nil
			}
			off += int(de.RecordLength)
		}
	}
	return nil, newErr(KindNoEnt, "lookup_dir_entry", fmt.Errorf("no entry named %q", name))
}

// AddDirEntry inserts a new record for (name, childIno) into dirIno,
// reusing free space in an existing block when one has room, otherwise
// allocating a fresh block. It rejects a name that already exists.
func (c *Context) AddDirEntry(dirIno *InodeEntry, name string, childIno uint32) error {
	if len(name) == 0 || len(name) > MaxNameLength {
		return newErr(KindInvArg, "add_dir_entry", fmt.Errorf("name length %d out of range 1..%d", len(name), MaxNameLength))
	}
	if strings.ContainsRune(name, '/') {
		return newErr(KindInvArg, "add_dir_entry", fmt.Errorf("name %q contains a path separator", name))
	}
	if _, err := c.LookupDirEntry(dirIno, name); err == nil {
		return newErr(KindEntExis, "add_dir_entry", fmt.Errorf("entry %q already exists", name))
	}

	newEntry := &DirEntry{Ino: childIno, Name: name}
	needed := newEntry.neededLength()

	nblocks := dirIno.BlocksCount
	for i := uint32(0); i < nblocks; i++ {
		blk, ok, err := c.GetDataBlockInfo(dirIno, i, LookupExtend)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		raw, err := c.readDataBlock(blk)
		if err != nil {
			return err
		}
		off := 0
		for off < len(raw) {
			de, err := dirEntryFromBytes(raw[off:])
			if err != nil {
				return newErr(KindFs, "add_dir_entry", err)
			}
			if de.Ino == 0 && de.Name == "" {
				freeLen := de.RecordLength
				if freeLen == 0 {
					freeLen = uint16(len(raw) - off)
				}
				if freeLen >= needed {
					newEntry.RecordLength = needed
					copy(raw[off:off+int(needed)], newEntry.toBytes())
					remaining := freeLen - needed
					if remaining >= DirEntryHeaderSize {
						term := &DirEntry{Ino: 0, RecordLength: remaining}
						copy(raw[off+int(needed):off+int(needed)+int(remaining)], term.toBytes())
					} else {
						newEntry.RecordLength = freeLen
						copy(raw[off:off+int(freeLen)], newEntry.toBytes())
					}
					return c.writeDataBlock(blk, raw)
				}
			}
			off += int(de.RecordLength)
		}
	}

	taken, err := c.AllocDataBlocks(dirIno, 1)
	if err != nil {
		return err
	}
	buf := make([]byte, c.sb.BlockSize)
	newEntry.RecordLength = needed
	copy(buf[0:needed], newEntry.toBytes())
	remaining := uint16(c.sb.BlockSize) - needed
	if remaining >= DirEntryHeaderSize {
		term := &DirEntry{Ino: 0, RecordLength: remaining}
		copy(buf[needed:needed+remaining], term.toBytes())
	}
	return c.writeDataBlock(taken[0], buf)
}

// ResolvePath walks path (slash-separated, relative to root) through
// successive LookupDirEntry/ReadInode calls. It does not follow symlinks;
// that is bridge-layer policy (spec.md Non-goals).
func (c *Context) ResolvePath(root *InodeEntry, path string) (*InodeEntry, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return root, nil
	}
	cur := root
	for _, comp := range strings.Split(path, "/") {
		if comp == "" {
			continue
		}
		if !cur.IsDir() {
			return nil, newErr(KindInvArg, "resolve_path", fmt.Errorf("%q is not a directory", comp))
		}
		de, err := c.LookupDirEntry(cur, comp)
		if err != nil {
			return nil, err
		}
		cur, err = c.ReadInode(de.Ino)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}
