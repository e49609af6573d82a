// Package memset implements the memory set: a page table plus an
// ordered collection of map areas, the unit a process (or the kernel
// itself) uses to describe its address space.
package memset

import (
	"fmt"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/pagetable"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
)

// AreaType distinguishes an identity-mapped area (PPN == VPN, used for
// the kernel image and MMIO) from a framed one (each page backed by a
// freshly allocated, area-owned frame).
type AreaType int

const (
	Identical AreaType = iota
	Framed
)

// MapArea is a contiguous VPN range, a type, and a permission set. A
// framed area owns the frames backing it; unmapping or tearing down the
// area releases them.
type MapArea struct {
	Range  mem.VPNRange
	Type   AreaType
	Perm   pagetable.Flag
	frames map[mem.VirtPageNum]*pmm.FrameTracker
}

// NewMapArea builds an area covering [startVA, endVA), rounding the
// start down and the end up to page boundaries.
func NewMapArea(startVA, endVA mem.VirtAddr, typ AreaType, perm pagetable.Flag) *MapArea {
	return &MapArea{
		Range:  mem.NewVPNRange(startVA.FloorPage(), endVA.CeilPage()),
		Type:   typ,
		Perm:   perm,
		frames: make(map[mem.VirtPageNum]*pmm.FrameTracker),
	}
}

// CloneShape returns a new, unmapped area with the same range, type, and
// permissions as a, but none of its frames — the starting point for
// FromExistingUser's per-area copy.
func (a *MapArea) CloneShape() *MapArea {
	return &MapArea{
		Range:  a.Range,
		Type:   a.Type,
		Perm:   a.Perm,
		frames: make(map[mem.VirtPageNum]*pmm.FrameTracker),
	}
}

func (a *MapArea) mapOne(pt *pagetable.PageTable, vpn mem.VirtPageNum) {
	var ppn mem.PhysPageNum
	switch a.Type {
	case Identical:
		ppn = mem.PhysPageNum(vpn)
	case Framed:
		frame := pmm.Alloc()
		if frame == nil {
			panic("memset: out of frames mapping area")
		}
		ppn = frame.PPN()
		a.frames[vpn] = frame
	}
	pt.Map(vpn, ppn, a.Perm)
}

func (a *MapArea) unmapOne(pt *pagetable.PageTable, vpn mem.VirtPageNum) {
	if a.Type == Framed {
		if f, ok := a.frames[vpn]; ok {
			f.Release()
			delete(a.frames, vpn)
		}
	}
	pt.Unmap(vpn)
}

// Map installs every page in the area's range into pt.
func (a *MapArea) Map(pt *pagetable.PageTable) {
	for _, vpn := range a.Range.All() {
		a.mapOne(pt, vpn)
	}
}

// Unmap removes every page in the area's range from pt, releasing any
// frames it owns.
func (a *MapArea) Unmap(pt *pagetable.PageTable) {
	for _, vpn := range a.Range.All() {
		a.unmapOne(pt, vpn)
	}
}

// ShrinkTo unmaps the tail of the area from newEnd to the current end
// and narrows the range.
func (a *MapArea) ShrinkTo(pt *pagetable.PageTable, newEnd mem.VirtPageNum) {
	for _, vpn := range mem.NewVPNRange(newEnd, a.Range.End).All() {
		a.unmapOne(pt, vpn)
	}
	a.Range = mem.NewVPNRange(a.Range.Start, newEnd)
}

// AppendTo maps new pages from the current end up to newEnd and widens
// the range.
func (a *MapArea) AppendTo(pt *pagetable.PageTable, newEnd mem.VirtPageNum) {
	for _, vpn := range mem.NewVPNRange(a.Range.End, newEnd).All() {
		a.mapOne(pt, vpn)
	}
	a.Range = mem.NewVPNRange(a.Range.Start, newEnd)
}

// releaseFrames frees every frame the area owns without touching the
// page table, used by RecycleDataPages which intentionally leaves the
// table's PTEs stale (the memory-set shell survives until waitpid).
func (a *MapArea) releaseFrames() {
	for vpn, f := range a.frames {
		f.Release()
		delete(a.frames, vpn)
	}
}

// CopyData copies data into the area's frames page by page, assuming
// data starts at the area's first page and every frame was already
// zero-filled on allocation (so a short final page is naturally
// zero-padded).
func (a *MapArea) CopyData(pt *pagetable.PageTable, arena *pmm.Arena, data []byte) {
	if a.Type != Framed {
		panic("memset: CopyData on a non-framed area")
	}

	start := 0
	vpn := a.Range.Start
	for {
		end := start + config.PageSize
		if end > len(data) {
			end = len(data)
		}
		src := data[start:end]

		pte, ok := pt.Translate(vpn)
		if !ok {
			panic(fmt.Sprintf("memset: %s not mapped while copying data", vpn))
		}
		dst := arena.PageBytes(pte.PPN())[:len(src)]
		copy(dst, src)

		start += config.PageSize
		if start >= len(data) {
			break
		}
		vpn++
	}
}
