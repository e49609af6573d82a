package memset

import (
	"fmt"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/elf"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/pagetable"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
)

// trampolinePPN backs the single physical page every address space maps
// at config.Trampoline. It is allocated once by InitTrampoline and
// shared (mapped R|X at that same virtual address) by the kernel's own
// memory set and every user one, mirroring the single TRAMPOLINE symbol the original linker
// script produced.
var trampolinePPN mem.PhysPageNum
var trampolineInit bool

// InitTrampoline allocates the shared trampoline frame. It must run once,
// before NewKernel or FromELF map their first address space.
func InitTrampoline() {
	if trampolineInit {
		return
	}
	frame := pmm.Alloc()
	if frame == nil {
		panic("memset: out of frames allocating the trampoline")
	}
	trampolinePPN = frame.PPN()
	trampolineInit = true
}

// KernelImageLayout gives NewKernel the addresses a linker script would
// normally supply as symbols: the bounds of the kernel's own sections.
// Consuming them as a parameter rather than real symbols keeps this
// subsystem independent of how (or whether) a concrete boot image is
// linked.
type KernelImageLayout struct {
	TextStart, TextEnd     uint64
	RodataStart, RodataEnd uint64
	DataStart, DataEnd     uint64
	BSSStart, BSSEnd       uint64
	KernelEnd              uint64
}

// MemorySet is a page table plus the ordered collection of map areas
// that describe what it maps. It is the unit of address-space identity
// for both the kernel and every user process.
type MemorySet struct {
	pt    *pagetable.PageTable
	areas []*MapArea
	arena *pmm.Arena
}

// NewBare returns an empty memory set backed by a freshly allocated page
// table.
func NewBare(arena *pmm.Arena) *MemorySet {
	return &MemorySet{pt: pagetable.New(arena), arena: arena}
}

// Token returns the SATP value that activates this memory set.
func (ms *MemorySet) Token() uint64 { return ms.pt.Token() }

// push maps area into the page table, optionally populating it with
// data (for a framed area's initial contents), and records it.
func (ms *MemorySet) push(area *MapArea, data []byte) {
	area.Map(ms.pt)
	if data != nil {
		area.CopyData(ms.pt, ms.arena, data)
	}
	ms.areas = append(ms.areas, area)
}

// InsertFramedArea maps a new framed area covering [startVA, endVA)
// with the given permissions. Used by proc.NewKernelStack for kernel
// stacks and by FromELF for the user stack.
func (ms *MemorySet) InsertFramedArea(startVA, endVA mem.VirtAddr, perm pagetable.Flag) {
	ms.push(NewMapArea(startVA, endVA, Framed, perm), nil)
}

// mapTrampoline installs the shared trampoline mapping directly into the
// page table, bypassing the MapArea bookkeeping: the trampoline frame is
// never owned by any memory set, so there's nothing for a MapArea to
// release.
func (ms *MemorySet) mapTrampoline() {
	if !trampolineInit {
		InitTrampoline()
	}
	vpn := mem.NewVirtAddr(config.Trampoline).ToVirtPageNum()
	ms.pt.Map(vpn, trampolinePPN, pagetable.FlagR|pagetable.FlagX)
}

// NewKernel builds the kernel's own memory set: the trampoline, the
// kernel image's sections identity-mapped with permissions derived from
// their contents, the remainder of RAM up to config.MemoryEnd, and every
// configured MMIO window.
func NewKernel(arena *pmm.Arena, layout KernelImageLayout) *MemorySet {
	ms := NewBare(arena)
	ms.mapTrampoline()

	identical := func(start, end uint64, perm pagetable.Flag) {
		if start == end {
			return
		}
		ms.push(NewMapArea(mem.NewVirtAddr(start), mem.NewVirtAddr(end), Identical, perm), nil)
	}

	identical(layout.TextStart, layout.TextEnd, pagetable.FlagR|pagetable.FlagX)
	identical(layout.RodataStart, layout.RodataEnd, pagetable.FlagR)
	identical(layout.DataStart, layout.DataEnd, pagetable.FlagR|pagetable.FlagW)
	identical(layout.BSSStart, layout.BSSEnd, pagetable.FlagR|pagetable.FlagW)
	identical(layout.KernelEnd, config.MemoryEnd, pagetable.FlagR|pagetable.FlagW)

	for _, r := range config.MMIORegions {
		identical(r.Base, r.Base+r.Size, pagetable.FlagR|pagetable.FlagW)
	}

	return ms
}

// FromELF builds a user memory set from a parsed ELF64 image: every
// PT_LOAD segment becomes a user-accessible framed area with permissions
// derived from its flags, followed by a guard page, a fixed-size user
// stack, an initially empty area for sbrk to grow, and the per-process
// trap context page. It returns the new memory set, the initial user
// stack pointer, and the entry point.
func FromELF(arena *pmm.Arena, data []byte) (ms *MemorySet, userSP uint64, entry uint64) {
	f, err := elf.Parse(data)
	if err != nil {
		panic(fmt.Sprintf("memset: %s", err))
	}

	ms = NewBare(arena)
	ms.mapTrampoline()

	var maxEndVPN mem.VirtPageNum
	for _, ph := range f.Programs {
		if ph.Type != elf.PTLoad {
			continue
		}
		perm := pagetable.FlagU
		if ph.Flags&elf.PFRead != 0 {
			perm |= pagetable.FlagR
		}
		if ph.Flags&elf.PFWrite != 0 {
			perm |= pagetable.FlagW
		}
		if ph.Flags&elf.PFExec != 0 {
			perm |= pagetable.FlagX
		}

		startVA := mem.NewVirtAddr(ph.VAddr)
		endVA := mem.NewVirtAddr(ph.VAddr + ph.MemSize)
		area := NewMapArea(startVA, endVA, Framed, perm)
		ms.push(area, ph.Data(data))

		if area.Range.End > maxEndVPN {
			maxEndVPN = area.Range.End
		}
	}

	userStackBottomVA := (maxEndVPN + 1).ToVirtAddr().Value() // one guard page
	userStackTopVA := userStackBottomVA + config.UserStackSize
	ms.InsertFramedArea(mem.NewVirtAddr(userStackBottomVA), mem.NewVirtAddr(userStackTopVA), pagetable.FlagR|pagetable.FlagW|pagetable.FlagU)

	// An empty area at the stack top, widened in place by sbrk.
	ms.push(NewMapArea(mem.NewVirtAddr(userStackTopVA), mem.NewVirtAddr(userStackTopVA), Framed, pagetable.FlagR|pagetable.FlagW|pagetable.FlagU), nil)

	ms.push(NewMapArea(mem.NewVirtAddr(config.TrapContext), mem.NewVirtAddr(config.Trampoline), Framed, pagetable.FlagR|pagetable.FlagW), nil)

	return ms, userStackTopVA, f.Entry
}

// FromExistingUser clones the shape of parent's user areas (skipping
// nothing — fork duplicates the whole address space) into a brand new
// memory set, copying each framed area's physical page contents byte for
// byte so the two processes are independent from that point on.
func FromExistingUser(arena *pmm.Arena, parent *MemorySet) *MemorySet {
	ms := NewBare(arena)
	ms.mapTrampoline()

	for _, area := range parent.areas {
		clone := area.CloneShape()
		ms.push(clone, nil)
		if area.Type != Framed {
			continue
		}
		for _, vpn := range area.Range.All() {
			srcPTE, ok := parent.pt.Translate(vpn)
			if !ok {
				continue
			}
			dstPTE, ok := ms.pt.Translate(vpn)
			if !ok {
				panic(fmt.Sprintf("memset: %s missing in cloned area after push", vpn))
			}
			copy(arena.PageBytes(dstPTE.PPN()), arena.PageBytes(srcPTE.PPN()))
		}
	}
	return ms
}

// Activate writes this memory set's token into satpSet (the Go stand-in
// for the `csrw satp` + `sfence.vma` sequence the original kernel issues
// on every context switch) and runs it.
func (ms *MemorySet) Activate(satpSet func(token uint64)) {
	satpSet(ms.Token())
}

// Translate performs a read-only page-table walk for vpn.
func (ms *MemorySet) Translate(vpn mem.VirtPageNum) (pagetable.PTE, bool) {
	return ms.pt.Translate(vpn)
}

// findArea returns the index of the area whose range starts at vpn.
func (ms *MemorySet) findArea(vpn mem.VirtPageNum) int {
	for i, a := range ms.areas {
		if a.Range.Start == vpn {
			return i
		}
	}
	return -1
}

// ShrinkTo shrinks the area starting at vpn down to newEnd, used by sbrk
// with a negative delta.
func (ms *MemorySet) ShrinkTo(vpn mem.VirtPageNum, newEnd mem.VirtPageNum) bool {
	i := ms.findArea(vpn)
	if i < 0 {
		return false
	}
	ms.areas[i].ShrinkTo(ms.pt, newEnd)
	return true
}

// AppendTo grows the area starting at vpn up to newEnd, used by sbrk
// with a positive delta.
func (ms *MemorySet) AppendTo(vpn mem.VirtPageNum, newEnd mem.VirtPageNum) bool {
	i := ms.findArea(vpn)
	if i < 0 {
		return false
	}
	ms.areas[i].AppendTo(ms.pt, newEnd)
	return true
}

// RemoveAreaWithStartVPN unmaps and releases the area starting at vpn,
// removing it from the set entirely.
func (ms *MemorySet) RemoveAreaWithStartVPN(vpn mem.VirtPageNum) bool {
	i := ms.findArea(vpn)
	if i < 0 {
		return false
	}
	ms.areas[i].Unmap(ms.pt)
	ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
	return true
}

// RecycleDataPages releases every user frame this memory set owns
// without touching the page table: a process between exit and waitpid
// keeps its memory-set shell (and PID) alive, but none of its memory.
func (ms *MemorySet) RecycleDataPages() {
	for _, a := range ms.areas {
		a.releaseFrames()
	}
	ms.areas = nil
}

// Destroy tears the memory set down completely: every area is unmapped
// (releasing its frames), then the page table itself, including every
// intermediate frame it allocated, is released.
func (ms *MemorySet) Destroy() {
	for _, a := range ms.areas {
		a.Unmap(ms.pt)
	}
	ms.areas = nil
	ms.pt.Destroy()
}
