// Package blockio translates byte-addressed reads/writes into the
// block-request protocol of internal/block, and implements the data
// block allocator, per spec.md §4.8.
package blockio

import (
	"fmt"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/proc"
	"github.com/huxgo/kernel/internal/syncx"
)

// IO bridges a process's blocking read/write calls to a block.Queue,
// keeping the process's PCB bookkeeping (BlockOn = ON_IDEDISK)
// faithful via proc.Table.BlockOnDisk.
type IO struct {
	cpu   *syncx.CPU
	queue *block.Queue
	table *proc.Table
}

// New wires a byte-addressed IO layer on top of an existing disk
// queue and process table.
func New(cpu *syncx.CPU, queue *block.Queue, table *proc.Table) *IO {
	return &IO{cpu: cpu, queue: queue, table: table}
}

// ReadBlock reads one whole block into dst (len(dst) must be
// block.Size).
func (io *IO) ReadBlock(p *proc.Process, blockNo uint32, dst []byte) error {
	req := block.NewReadRequest(blockNo)
	if err := io.submit(p, req); err != nil {
		return err
	}
	copy(dst, req.Data[:])
	return nil
}

// WriteBlock writes one whole block (len(src) must be block.Size).
func (io *IO) WriteBlock(p *proc.Process, blockNo uint32, src []byte) error {
	var data [block.Size]byte
	copy(data[:], src)
	return io.submit(p, block.NewWriteRequest(blockNo, data))
}

func (io *IO) submit(p *proc.Process, req *block.Request) error {
	if p == nil {
		return io.queue.Submit(io.cpu, req)
	}
	return io.table.BlockOnDisk(io.cpu, p, io.queue, req)
}

// Resolver maps a 0-based logical block index within some file or
// bitmap region to an absolute disk block number, exactly the role
// internal/fs's inode block-index walk plays for inode_read/write
// (spec.md §4.9).
type Resolver func(logicalBlockIdx int) (uint32, error)

// ReadSpan reads length bytes starting at byte offset off (relative
// to the resolved region) into dst, one underlying block request per
// covered block (spec.md §4.8 "For reads...").
func (io *IO) ReadSpan(p *proc.Process, resolve Resolver, off, length int, dst []byte) (int, error) {
	if len(dst) < length {
		return 0, fmt.Errorf("blockio: dst too small for requested length")
	}
	read := 0
	var buf [block.Size]byte
	for read < length {
		blockIdx := (off + read) / block.Size
		inBlock := (off + read) % block.Size
		n := block.Size - inBlock
		if n > length-read {
			n = length - read
		}
		blockNo, err := resolve(blockIdx)
		if err != nil {
			return read, err
		}
		if err := io.ReadBlock(p, blockNo, buf[:]); err != nil {
			return read, err
		}
		copy(dst[read:read+n], buf[inBlock:inBlock+n])
		read += n
	}
	return read, nil
}

// WriteSpan writes length bytes from src starting at byte offset off.
// Any partial-block write is a read-modify-write so the untouched
// bytes of that block survive (spec.md §4.8 "a read-modify-write is
// performed...").
func (io *IO) WriteSpan(p *proc.Process, resolve Resolver, off, length int, src []byte) (int, error) {
	if len(src) < length {
		return 0, fmt.Errorf("blockio: src too small for requested length")
	}
	written := 0
	var buf [block.Size]byte
	for written < length {
		blockIdx := (off + written) / block.Size
		inBlock := (off + written) % block.Size
		n := block.Size - inBlock
		if n > length-written {
			n = length - written
		}
		blockNo, err := resolve(blockIdx)
		if err != nil {
			return written, err
		}
		if n < block.Size {
			if err := io.ReadBlock(p, blockNo, buf[:]); err != nil {
				return written, err
			}
		}
		copy(buf[inBlock:inBlock+n], src[written:written+n])
		if err := io.WriteBlock(p, blockNo, buf[:]); err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}
