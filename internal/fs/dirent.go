package fs

import "bytes"

// DirentSize is the exact 128-byte on-disk directory entry of
// spec.md §3, §6: a 4-byte inumber (0 = unused) followed by a
// 124-byte NUL-terminated filename.
const DirentSize = 128
const dirNameSize = 124

// Dirent is one directory entry.
type Dirent struct {
	Inumber uint32
	Name    string
}

// Marshal encodes the entry into its exact 128-byte on-disk form.
func (d Dirent) Marshal() [DirentSize]byte {
	var b [DirentSize]byte
	b[0] = byte(d.Inumber)
	b[1] = byte(d.Inumber >> 8)
	b[2] = byte(d.Inumber >> 16)
	b[3] = byte(d.Inumber >> 24)
	n := copy(b[4:4+dirNameSize], d.Name)
	_ = n // remaining bytes stay zero, acting as the NUL terminator
	return b
}

// Unmarshal decodes a 128-byte on-disk directory entry.
func Unmarshal(b [DirentSize]byte) Dirent {
	inumber := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	end := bytes.IndexByte(b[4:4+dirNameSize], 0)
	if end < 0 {
		end = dirNameSize
	}
	return Dirent{Inumber: inumber, Name: string(b[4 : 4+end])}
}
