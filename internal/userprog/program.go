package userprog

import "encoding/binary"

// Program is a named tape plus the scratch memory its Ops read and
// write buffer arguments through (message strings, exec path names,
// waitpid status words).
type Program struct {
	Name    string
	Ops     []Op
	Scratch []byte
}

const (
	ehdrSize = 64
	phdrSize = 56

	ptLoad                       = 1
	pfRead, pfWrite, pfExec uint32 = 1 << 2, 1 << 1, 1 << 0
)

// Build lays out p.Scratch as the sole PT_LOAD segment of a minimal
// ELF64 image, entered at entry and mapped R|W|X so every Op's buffer
// argument (relative to entry) is addressable the instant the program
// starts running. Real user binaries would never map .text writable;
// this kernel's tape interpreter has no separate instruction memory to
// keep .text pointing at, so the segment doubles as both.
func Build(entry uint64, p Program) []byte {
	phOff := uint64(ehdrSize)
	segOff := phOff + phdrSize

	buf := make([]byte, segOff+uint64(len(p.Scratch)))
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB

	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phOff)
	binary.LittleEndian.PutUint16(buf[54:56], phdrSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phOff : phOff+phdrSize]
	binary.LittleEndian.PutUint32(ph[0:4], ptLoad)
	binary.LittleEndian.PutUint32(ph[4:8], pfRead|pfWrite|pfExec)
	binary.LittleEndian.PutUint64(ph[8:16], segOff)
	binary.LittleEndian.PutUint64(ph[16:24], entry)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(p.Scratch)))
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(p.Scratch)))

	copy(buf[segOff:], p.Scratch)
	return buf
}
