// Package fs implements the on-disk inode filesystem of spec.md §4.9:
// superblock boot, an inode cache with per-inode blocking locks,
// direct/indirect block index walks, directories, path resolution,
// and the open-file table.
package fs

import "github.com/huxgo/kernel/internal/block"

// Disk layout (spec.md §3, §6) — block counts, one block = 1 KiB.
const (
	SuperblockNo = 0

	InodeBitmapStart  = 1
	InodeBitmapBlocks = 6

	DataBitmapStart  = InodeBitmapStart + InodeBitmapBlocks // 7
	DataBitmapBlocks = 32

	InodeTableStart = DataBitmapStart + DataBitmapBlocks // 39
	InodesPerBlock  = block.Size / InodeSize             // 8

	DataRegionStart = 6144
	TotalBlocks     = 262144

	RootInumber = 0
)

// MaxInodes is the inode table's capacity given InodeTableStart and
// DataRegionStart (spec.md §3's disk layout diagram).
const MaxInodes = (DataRegionStart - InodeTableStart) * InodesPerBlock

// MaxDataBlocks is the number of blocks the data bitmap governs.
const MaxDataBlocks = TotalBlocks - DataRegionStart

// Superblock mirrors block 0. This implementation hard-codes the
// layout constants above and only checks the magic on boot — spec.md
// §4.9 explicitly permits either a hard-coded or a fully parsed
// layout.
type Superblock struct {
	Magic      uint32
	TotalSize  uint32
	InodeCount uint32
	DataBlocks uint32
}

const superblockMagic = 0x68757866 // "huxf"
