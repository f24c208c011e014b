package fs

import (
	"encoding/binary"

	"github.com/huxgo/kernel/internal/block"
)

// InodeSize is the on-disk inode's fixed size (spec.md §3, §6):
// type(4) + size(4) + 16 direct(4 each) + 8 singly-indirect(4 each) +
// 1 doubly-indirect(4) = 108 bytes of fields, padded with zeroed
// reserved bytes out to 128.
const InodeSize = 128

const (
	DirectCount          = 16
	SinglyIndirectCount  = 8
	EntriesPerIndirBlock = block.Size / 4 // 256

	MaxFileBlocks = DirectCount + SinglyIndirectCount*EntriesPerIndirBlock + EntriesPerIndirBlock*EntriesPerIndirBlock
)

// InodeType is the on-disk inode's type tag.
type InodeType uint32

const (
	TypeEmpty InodeType = iota
	TypeFile
	TypeDir
)

// DiskInode is the exact 128-byte on-disk inode of spec.md §3: type,
// size, 16 direct block pointers, 8 singly-indirect, 1
// doubly-indirect.
type DiskInode struct {
	Type    InodeType
	Size    uint32
	Direct  [DirectCount]uint32
	Singly  [SinglyIndirectCount]uint32
	Doubly  uint32
}

// Marshal encodes the inode into its exact 128-byte on-disk form;
// reserved tail bytes are zero, as spec.md §6 requires on allocation.
func (d *DiskInode) Marshal() [InodeSize]byte {
	var b [InodeSize]byte
	off := 0
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(b[off:off+4], v)
		off += 4
	}
	putU32(uint32(d.Type))
	putU32(d.Size)
	for _, v := range d.Direct {
		putU32(v)
	}
	for _, v := range d.Singly {
		putU32(v)
	}
	putU32(d.Doubly)
	return b
}

// Unmarshal decodes a 128-byte on-disk inode.
func (d *DiskInode) Unmarshal(b [InodeSize]byte) {
	off := 0
	getU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		return v
	}
	d.Type = InodeType(getU32())
	d.Size = getU32()
	for i := range d.Direct {
		d.Direct[i] = getU32()
	}
	for i := range d.Singly {
		d.Singly[i] = getU32()
	}
	d.Doubly = getU32()
}

// inodeBlockAndOffset locates inumber's 128-byte slot within the
// inode table (spec.md §3: 8 inodes per block).
func inodeBlockAndOffset(inumber uint32) (blockNo uint32, offset int) {
	blockNo = InodeTableStart + inumber/InodesPerBlock
	offset = int(inumber%InodesPerBlock) * InodeSize
	return
}
