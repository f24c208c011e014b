// Package syscall implements the numbered syscall dispatch table and
// argument-validation helpers of spec.md §4.10, and the SysProc/
// SysFile/SysMem/SysMisc translations of spec.md §6's syscall surface
// table.
package syscall

import (
	"encoding/binary"
	"fmt"

	"github.com/huxgo/kernel/internal/memory"
	"github.com/huxgo/kernel/internal/proc"
)

// ErrFault is returned by every sysarg_get_* helper when an argument
// address or buffer falls outside the calling process's mapped user
// memory. Dispatch turns it into the distinguished −1 failure value.
var ErrFault = fmt.Errorf("syscall: argument fault")

// argInt reads the 32-bit word at esp + 4 + 4n, failing unless that
// address lies in [stack_low, USER_MAX) (spec.md §4.10 sysarg_get_int).
func argInt(p *proc.Process, n int) (uint32, error) {
	addr := p.Trap.Esp + 4 + 4*uint32(n)
	if addr < p.StackLow || addr+4 > memory.UserMax {
		return 0, ErrFault
	}
	var buf [4]byte
	if err := p.PageDir.ReadUser(addr, buf[:]); err != nil {
		return 0, ErrFault
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// argMem reads a pointer argument and validates that [ptr, ptr+length)
// lies fully inside either the text/heap region or the stack region,
// never straddling the hole between them (spec.md §4.10
// sysarg_get_mem).
func argMem(p *proc.Process, n int, length uint32) (uint32, error) {
	ptr, err := argInt(p, n)
	if err != nil {
		return 0, err
	}
	end := ptr + length
	if end < ptr {
		return 0, ErrFault // overflow
	}
	inHeap := ptr >= memory.UserBase && end <= p.HeapHigh
	inStack := ptr >= p.StackLow && end <= memory.UserMax
	if !inHeap && !inStack {
		return 0, ErrFault
	}
	return ptr, nil
}

// argStr reads a pointer argument and scans forward for a NUL
// terminator without leaving mapped user memory, failing if none is
// found within maxLen bytes (spec.md §4.10 sysarg_get_str).
func argStr(p *proc.Process, n int, maxLen int) (string, error) {
	ptr, err := argInt(p, n)
	if err != nil {
		return "", err
	}
	s, err := p.PageDir.ReadCString(ptr, maxLen)
	if err != nil {
		return "", ErrFault
	}
	return s, nil
}
