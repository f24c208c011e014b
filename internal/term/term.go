// Package term defines the kernel's two console collaborators —
// keyboard input and colored text output — as minimal interfaces so
// the core compiles and is tested without a real VGA/PS2 driver,
// exactly the role spec.md §1 assigns them as "opaque external
// devices."
package term

// KeyboardSource is the kbdstr syscall's line-input collaborator. A
// real implementation would drain the PS2 scancode buffer; tests and
// `goux boot` without a TTY attached use HeadlessKeyboard instead.
type KeyboardSource interface {
	// ReadLine blocks until a line (without its trailing newline) is
	// available, or returns an error if the source is closed.
	ReadLine() (string, error)
}

// Sink is the tprint syscall's colored-output collaborator.
type Sink interface {
	// Print writes s in the given color (0..15, a VGA text-mode
	// attribute nibble) and reports whether color was in range.
	Print(color int, s string) bool
}
