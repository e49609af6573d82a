// Package pmm implements the physical frame allocator: a bump-with-
// free-list pool of 4 KiB frames handed out to page tables and map areas.
//
// There is no bare-metal RAM to carve frames out of in a hosted build, so
// physical memory is modelled as an Arena: a byte slice addressed by the
// same PhysAddr/PhysPageNum types the rest of the kernel uses everywhere
// else. Every subsystem that would normally dereference a physical
// address goes through an Arena instead.
package pmm

import (
	"fmt"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/mem"
)

// Arena simulates a contiguous range of physical RAM [Base, Base+len(data)).
type Arena struct {
	base mem.PhysAddr
	data []byte
}

// NewArena allocates an arena covering [base, base+size).
func NewArena(base mem.PhysAddr, size uint64) *Arena {
	return &Arena{base: base, data: make([]byte, size)}
}

// Base returns the first physical address the arena covers.
func (a *Arena) Base() mem.PhysAddr { return a.base }

// End returns the first physical address past the arena.
func (a *Arena) End() mem.PhysAddr { return mem.PhysAddr(a.base.Value() + uint64(len(a.data))) }

// Contains reports whether pa falls within the arena.
func (a *Arena) Contains(pa mem.PhysAddr) bool {
	return pa.Value() >= a.base.Value() && pa.Value() < a.End().Value()
}

// Bytes returns a slice of the arena's backing storage covering n bytes
// starting at pa. It panics if the range falls outside the arena, the
// same failure mode a real out-of-bounds physical access would have.
func (a *Arena) Bytes(pa mem.PhysAddr, n int) []byte {
	if !a.Contains(pa) || !a.Contains(mem.PhysAddr(pa.Value()+uint64(n)-1)) {
		panic(fmt.Sprintf("pmm: address range [%s, %#x) outside arena [%s, %s)", pa, pa.Value()+uint64(n), a.base, a.End()))
	}
	off := pa.Value() - a.base.Value()
	return a.data[off : off+uint64(n)]
}

// PageBytes returns the config.PageSize bytes backing ppn.
func (a *Arena) PageBytes(ppn mem.PhysPageNum) []byte {
	return a.Bytes(ppn.ToPhysAddr(), config.PageSize)
}

// ZeroPage clears the page backing ppn, mirroring the spec's
// zero-on-allocation guarantee for fresh frames.
func (a *Arena) ZeroPage(ppn mem.PhysPageNum) {
	page := a.PageBytes(ppn)
	for i := range page {
		page[i] = 0
	}
}
