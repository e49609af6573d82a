// Package elf parses just enough of the ELF64 format to load a
// statically linked RISC-V user executable: the identification bytes,
// the entry point, and the PT_LOAD program headers. It deliberately
// does not understand sections, symbols, or relocations — nothing in
// this kernel needs them.
package elf

import (
	"encoding/binary"
	"fmt"
)

const (
	magic0, magic1, magic2, magic3 = 0x7F, 'E', 'L', 'F'

	class64 = 2
	dataLSB = 1

	ehdrSize = 64
	phdrSize = 56

	// PTLoad is the program header type for a loadable segment.
	PTLoad = 1

	// Segment flag bits, matching the ELF PF_* constants.
	PFExec  = 1 << 0
	PFWrite = 1 << 1
	PFRead  = 1 << 2
)

// ProgramHeader describes one loadable segment: filesz bytes starting
// at Offset in the image are loaded at VAddr, and the segment occupies
// MemSize bytes in memory (MemSize >= FileSize; the remainder is BSS,
// zero-filled).
type ProgramHeader struct {
	Type    uint32
	Flags   uint32
	Offset  uint64
	VAddr   uint64
	FileSize uint64
	MemSize uint64
}

// File is a parsed ELF64 executable.
type File struct {
	Entry    uint64
	Programs []ProgramHeader
}

// Parse validates the ELF64 header and returns the entry point and
// program header table. It returns an error on a malformed image
// rather than panicking: unlike the rest of this subsystem, a bad
// image here can come from outside the kernel (whatever built the
// program's tape), so the caller decides whether that's fatal.
func Parse(data []byte) (*File, error) {
	if len(data) < ehdrSize {
		return nil, fmt.Errorf("elf: file too short for a header (%d bytes)", len(data))
	}
	if data[0] != magic0 || data[1] != magic1 || data[2] != magic2 || data[3] != magic3 {
		return nil, fmt.Errorf("elf: bad magic %x", data[:4])
	}
	if data[4] != class64 {
		return nil, fmt.Errorf("elf: not a 64-bit object (EI_CLASS=%d)", data[4])
	}
	if data[5] != dataLSB {
		return nil, fmt.Errorf("elf: not little-endian (EI_DATA=%d)", data[5])
	}

	entry := binary.LittleEndian.Uint64(data[24:32])
	phoff := binary.LittleEndian.Uint64(data[32:40])
	phentsize := binary.LittleEndian.Uint16(data[54:56])
	phnum := binary.LittleEndian.Uint16(data[56:58])

	if phentsize != phdrSize {
		return nil, fmt.Errorf("elf: unexpected program header size %d", phentsize)
	}

	f := &File{Entry: entry}
	for i := uint16(0); i < phnum; i++ {
		base := phoff + uint64(i)*uint64(phdrSize)
		if base+phdrSize > uint64(len(data)) {
			return nil, fmt.Errorf("elf: program header %d out of bounds", i)
		}
		ph := data[base : base+phdrSize]
		f.Programs = append(f.Programs, ProgramHeader{
			Type:     binary.LittleEndian.Uint32(ph[0:4]),
			Flags:    binary.LittleEndian.Uint32(ph[4:8]),
			Offset:   binary.LittleEndian.Uint64(ph[8:16]),
			VAddr:    binary.LittleEndian.Uint64(ph[16:24]),
			FileSize: binary.LittleEndian.Uint64(ph[32:40]),
			MemSize:  binary.LittleEndian.Uint64(ph[40:48]),
		})
	}
	return f, nil
}

// Data returns the on-disk bytes of segment ph within the full image
// data.
func (ph ProgramHeader) Data(data []byte) []byte {
	return data[ph.Offset : ph.Offset+ph.FileSize]
}
