package syscall

// Syscall numbers, in the exact order of the surface table in
// spec.md §6. The dispatch table is indexed by these values directly
// rather than through a map, matching the original's switch-less
// jump-table style.
const (
	SysGetpid = iota
	SysFork
	SysExit
	SysSleep
	SysWait
	SysKill
	SysShutdown
	SysSetheap
	SysOpen
	SysClose
	SysCreate
	SysRemove
	SysRead
	SysWrite
	SysChdir
	SysGetcwd
	SysExec
	SysFstat
	SysSeek
	SysUptime
	SysKbdstr
	SysTprint

	numSyscalls
)

var syscallNames = [numSyscalls]string{
	SysGetpid:   "getpid",
	SysFork:     "fork",
	SysExit:     "exit",
	SysSleep:    "sleep",
	SysWait:     "wait",
	SysKill:     "kill",
	SysShutdown: "shutdown",
	SysSetheap:  "setheap",
	SysOpen:     "open",
	SysClose:    "close",
	SysCreate:   "create",
	SysRemove:   "remove",
	SysRead:     "read",
	SysWrite:    "write",
	SysChdir:    "chdir",
	SysGetcwd:   "getcwd",
	SysExec:     "exec",
	SysFstat:    "fstat",
	SysSeek:     "seek",
	SysUptime:   "uptime",
	SysKbdstr:   "kbdstr",
	SysTprint:   "tprint",
}

// Name reports the mnemonic for a syscall number, or "unknown".
func Name(num int) string {
	if num < 0 || num >= numSyscalls {
		return "unknown"
	}
	return syscallNames[num]
}
