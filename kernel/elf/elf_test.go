package elf

import (
	"encoding/binary"
	"testing"
)

// buildImage assembles a minimal ELF64 image: a header, one program
// header table entry, and the segment's bytes, laid out in that order.
func buildImage(t *testing.T, entry uint64, ph ProgramHeader, segment []byte) []byte {
	t.Helper()

	const phOff = ehdrSize
	segOff := phOff + phdrSize

	buf := make([]byte, segOff+len(segment))
	buf[0], buf[1], buf[2], buf[3] = magic0, magic1, magic2, magic3
	buf[4] = class64
	buf[5] = dataLSB

	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(phOff))
	binary.LittleEndian.PutUint16(buf[54:56], phdrSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	p := buf[phOff : phOff+phdrSize]
	binary.LittleEndian.PutUint32(p[0:4], ph.Type)
	binary.LittleEndian.PutUint32(p[4:8], ph.Flags)
	binary.LittleEndian.PutUint64(p[8:16], uint64(segOff))
	binary.LittleEndian.PutUint64(p[16:24], ph.VAddr)
	binary.LittleEndian.PutUint64(p[32:40], uint64(len(segment)))
	binary.LittleEndian.PutUint64(p[40:48], ph.MemSize)

	copy(buf[segOff:], segment)
	return buf
}

func TestParseEntryAndProgramHeader(t *testing.T) {
	segment := []byte("user program bytes")
	image := buildImage(t, 0x1000, ProgramHeader{
		Type:    PTLoad,
		Flags:   PFRead | PFExec,
		VAddr:   0x1000,
		MemSize: uint64(len(segment)),
	}, segment)

	f, err := Parse(image)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Entry != 0x1000 {
		t.Errorf("expected entry 0x1000, got %#x", f.Entry)
	}
	if len(f.Programs) != 1 {
		t.Fatalf("expected 1 program header, got %d", len(f.Programs))
	}
	ph := f.Programs[0]
	if ph.Type != PTLoad || ph.Flags != PFRead|PFExec || ph.VAddr != 0x1000 {
		t.Errorf("unexpected program header: %+v", ph)
	}
	if string(ph.Data(image)) != string(segment) {
		t.Errorf("expected segment data %q, got %q", segment, ph.Data(image))
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	image := buildImage(t, 0, ProgramHeader{Type: PTLoad}, nil)
	image[0] = 0

	if _, err := Parse(image); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err == nil {
		t.Fatal("expected an error for a truncated header")
	}
}
