// Package pagetable implements the Sv39 three-level page table: a 64-bit
// page table entry format, page-walking with on-demand intermediate
// frame allocation, and the user/kernel boundary-crossing helpers that
// translate a (SATP token, user pointer) pair into kernel-addressable
// bytes.
package pagetable

import (
	"github.com/ogurioguri/cradles-os/kernel/mem"
)

// Flag is one bit of a page table entry.
type Flag uint64

const (
	FlagV Flag = 1 << 0 // valid
	FlagR Flag = 1 << 1 // readable
	FlagW Flag = 1 << 2 // writable
	FlagX Flag = 1 << 3 // executable
	FlagU Flag = 1 << 4 // accessible in user mode
	FlagG Flag = 1 << 5 // global
	FlagA Flag = 1 << 6 // accessed
	FlagD Flag = 1 << 7 // dirty

	ppnShift = 10
	ppnMask  = ((uint64(1) << 44) - 1) << ppnShift
	flagMask = (uint64(1) << 10) - 1
)

// PTE is a single Sv39 page table entry: a physical page number plus an
// 8-bit flag set, packed the way the hardware page-table walker expects.
type PTE uint64

// NewPTE builds an entry pointing at ppn with the given flags.
func NewPTE(ppn mem.PhysPageNum, flags Flag) PTE {
	return PTE((uint64(ppn) << ppnShift) | (uint64(flags) & flagMask))
}

// HasFlags reports whether every bit in flags is set.
func (pte PTE) HasFlags(flags Flag) bool {
	return uint64(pte)&uint64(flags) == uint64(flags)
}

// SetFlags sets the given bits, leaving the PPN and other flags intact.
func (pte *PTE) SetFlags(flags Flag) {
	*pte = PTE(uint64(*pte) | uint64(flags))
}

// ClearFlags clears the given bits.
func (pte *PTE) ClearFlags(flags Flag) {
	*pte = PTE(uint64(*pte) &^ uint64(flags))
}

// PPN returns the physical page number this entry points to.
func (pte PTE) PPN() mem.PhysPageNum {
	return mem.PhysPageNum((uint64(pte) & ppnMask) >> ppnShift)
}

// IsLeaf reports whether the entry is a valid leaf (at least one of
// R/W/X set), as opposed to a valid pointer to the next table level.
func (pte PTE) IsLeaf() bool {
	return pte.HasFlags(FlagV) && (pte.HasFlags(FlagR) || pte.HasFlags(FlagW) || pte.HasFlags(FlagX))
}
