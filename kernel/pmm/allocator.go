package pmm

import (
	"fmt"

	"github.com/ogurioguri/cradles-os/kernel/mem"
	ksync "github.com/ogurioguri/cradles-os/kernel/sync"
)

// StackFrameAllocator hands out physical page numbers from [current, end),
// falling back to a LIFO stack of recycled pages before advancing the
// bump pointer. This is the exact algorithm of the Rust original's
// StackFrameAllocator.
type StackFrameAllocator struct {
	current, end mem.PhysPageNum
	recycled     []mem.PhysPageNum
}

// Init resets the allocator to hand out pages from [start, end).
func (a *StackFrameAllocator) Init(start, end mem.PhysPageNum) {
	a.current = start
	a.end = end
	a.recycled = nil
}

// Alloc pops a recycled page if one is available, otherwise advances the
// bump pointer. It returns false if the pool is exhausted.
func (a *StackFrameAllocator) Alloc() (mem.PhysPageNum, bool) {
	if n := len(a.recycled); n > 0 {
		ppn := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return ppn, true
	}
	if a.current == a.end {
		return 0, false
	}
	ppn := a.current
	a.current++
	return ppn, true
}

// Dealloc returns ppn to the pool. It panics if ppn was never handed out
// by Alloc or has already been recycled, the same invariant violation the
// original flags as a fatal kernel error.
func (a *StackFrameAllocator) Dealloc(ppn mem.PhysPageNum) {
	if ppn >= a.current {
		panic(fmt.Sprintf("pmm: frame %s has not been allocated", ppn))
	}
	for _, r := range a.recycled {
		if r == ppn {
			panic(fmt.Sprintf("pmm: frame %s has not been allocated", ppn))
		}
	}
	a.recycled = append(a.recycled, ppn)
}

var (
	globalArena     *Arena
	globalAllocator = ksync.NewUPCell(StackFrameAllocator{})
)

// Init wires the package-level allocator to hand out frames backed by
// arena, covering the page range [start, end).
func Init(arena *Arena, start, end mem.PhysPageNum) {
	globalArena = arena
	g := globalAllocator.Access()
	defer g.Release()
	g.Get().Init(start, end)
}

// Alloc hands out a single zero-filled frame, or nil if the pool is
// exhausted. Per spec this is a fatal condition for teaching-kernel
// callers; callers that can't tolerate nil should wrap the call with
// kfmt.Panic themselves.
func Alloc() *FrameTracker {
	g := globalAllocator.Access()
	ppn, ok := g.Get().Alloc()
	g.Release()
	if !ok {
		return nil
	}
	globalArena.ZeroPage(ppn)
	return &FrameTracker{ppn: ppn, arena: globalArena}
}

// Dealloc returns ppn directly to the pool, bypassing FrameTracker. Used
// by FrameTracker.Release; exported so page-table code that manages PPNs
// without a tracker (intermediate page-table frames are tracked as raw
// PPNs by PageTable itself) can still release them.
func Dealloc(ppn mem.PhysPageNum) {
	g := globalAllocator.Access()
	defer g.Release()
	g.Get().Dealloc(ppn)
}
