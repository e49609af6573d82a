package pagetable

import (
	"encoding/binary"
	"fmt"

	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
)

const entriesPerPage = 512

// satpMode is the Sv39 encoding written into the top 4 bits of SATP.
const satpMode = uint64(8) << 60

// PageTable is a three-level Sv39 page table. It owns its root frame and
// every intermediate frame it allocates while walking on behalf of Map;
// tearing the table down (Destroy) releases all of them, which is why
// they're tracked here rather than by the leaf map areas that requested
// them.
type PageTable struct {
	root   mem.PhysPageNum
	owned  []*pmm.FrameTracker
	arena  *pmm.Arena
	ownsRoot bool
}

// New allocates a fresh root frame and returns an empty page table that
// owns every frame it subsequently allocates.
func New(arena *pmm.Arena) *PageTable {
	root := pmm.Alloc()
	if root == nil {
		panic("pagetable: out of frames allocating root")
	}
	return &PageTable{root: root.PPN(), owned: []*pmm.FrameTracker{root}, arena: arena, ownsRoot: true}
}

// FromToken reconstructs a read-only view of the page table named by a
// SATP token, for use by the translation helpers that cross the
// user/kernel boundary. The returned table owns no frames: it must never
// be used to Map or Destroy.
func FromToken(token uint64, arena *pmm.Arena) *PageTable {
	return &PageTable{root: mem.PhysPageNum(token & ((1 << 44) - 1)), arena: arena}
}

// Token returns the SATP value that activates this table: Sv39 mode,
// ASID 0, and the root frame's PPN.
func (pt *PageTable) Token() uint64 {
	return satpMode | uint64(pt.root)
}

func (pt *PageTable) entryAt(ppn mem.PhysPageNum, idx uint64) PTE {
	b := pt.arena.PageBytes(ppn)
	return PTE(binary.LittleEndian.Uint64(b[idx*8:]))
}

func (pt *PageTable) setEntryAt(ppn mem.PhysPageNum, idx uint64, pte PTE) {
	b := pt.arena.PageBytes(ppn)
	binary.LittleEndian.PutUint64(b[idx*8:], uint64(pte))
}

// pteRef names a single slot in one of the table's pages, letting callers
// read-modify-write an entry without Go ever handing out a raw pointer
// into the simulated physical arena.
type pteRef struct {
	pt  *PageTable
	ppn mem.PhysPageNum
	idx uint64
}

func (r pteRef) Get() PTE          { return r.pt.entryAt(r.ppn, r.idx) }
func (r pteRef) Set(pte PTE)       { r.pt.setEntryAt(r.ppn, r.idx, pte) }

// findPTECreate walks the three levels for vpn, allocating an
// intermediate frame (written with V only, per spec) for any non-valid
// non-leaf entry it encounters along the way.
func (pt *PageTable) findPTECreate(vpn mem.VirtPageNum) pteRef {
	idx := vpn.Indexes()
	ppn := pt.root
	for level := 0; level < 2; level++ {
		pte := pt.entryAt(ppn, idx[level])
		if !pte.HasFlags(FlagV) {
			frame := pmm.Alloc()
			if frame == nil {
				panic("pagetable: out of frames walking page table")
			}
			pt.owned = append(pt.owned, frame)
			pt.setEntryAt(ppn, idx[level], NewPTE(frame.PPN(), FlagV))
			ppn = frame.PPN()
		} else {
			ppn = pte.PPN()
		}
	}
	return pteRef{pt: pt, ppn: ppn, idx: idx[2]}
}

// findPTE walks read-only, returning ok=false the moment it hits a
// non-valid entry at any level.
func (pt *PageTable) findPTE(vpn mem.VirtPageNum) (pteRef, bool) {
	idx := vpn.Indexes()
	ppn := pt.root
	for level := 0; level < 3; level++ {
		pte := pt.entryAt(ppn, idx[level])
		if !pte.HasFlags(FlagV) {
			return pteRef{}, false
		}
		if level == 2 {
			return pteRef{pt: pt, ppn: ppn, idx: idx[2]}, true
		}
		ppn = pte.PPN()
	}
	return pteRef{}, false
}

// Map installs a leaf mapping vpn -> ppn with the given flags. It panics
// if vpn is already mapped, the precondition the spec requires of
// callers.
func (pt *PageTable) Map(vpn mem.VirtPageNum, ppn mem.PhysPageNum, flags Flag) {
	ref := pt.findPTECreate(vpn)
	if ref.Get().HasFlags(FlagV) {
		panic(fmt.Sprintf("pagetable: %s is already mapped", vpn))
	}
	ref.Set(NewPTE(ppn, flags|FlagV))
}

// Unmap removes the leaf mapping for vpn. It panics if vpn was not
// mapped. Intermediate frames are never freed here: they may still back
// other leaf entries in the same sub-tree.
func (pt *PageTable) Unmap(vpn mem.VirtPageNum) {
	ref, ok := pt.findPTE(vpn)
	if !ok || !ref.Get().HasFlags(FlagV) {
		panic(fmt.Sprintf("pagetable: %s is not mapped", vpn))
	}
	ref.Set(PTE(0))
}

// Translate performs a read-only walk, returning the leaf PTE for vpn
// and false if no valid mapping exists.
func (pt *PageTable) Translate(vpn mem.VirtPageNum) (PTE, bool) {
	ref, ok := pt.findPTE(vpn)
	if !ok {
		return 0, false
	}
	pte := ref.Get()
	if !pte.HasFlags(FlagV) {
		return 0, false
	}
	return pte, true
}

// Destroy releases every frame this table owns (root plus every
// intermediate frame allocated on its behalf). Tables returned by
// FromToken own nothing and Destroy on them is a no-op.
func (pt *PageTable) Destroy() {
	for _, f := range pt.owned {
		f.Release()
	}
	pt.owned = nil
}
