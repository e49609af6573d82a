package pmm

import (
	"fmt"

	"github.com/ogurioguri/cradles-os/kernel/mem"
)

// FrameTracker owns exactly one physical frame for its lifetime. Go has
// no destructors, so unlike the Rust original's drop-returns-the-frame
// behaviour, callers must call Release explicitly once they are done with
// the frame; failing to do so leaks the frame rather than corrupting
// state.
type FrameTracker struct {
	ppn      mem.PhysPageNum
	arena    *Arena
	released bool
}

// PPN returns the physical page number this tracker owns.
func (f *FrameTracker) PPN() mem.PhysPageNum { return f.ppn }

// Bytes returns the page's backing bytes.
func (f *FrameTracker) Bytes() []byte {
	if f.released {
		panic("pmm: use of frame after Release")
	}
	return f.arena.PageBytes(f.ppn)
}

// Release returns the frame to the global allocator. Releasing a frame
// twice panics, since that would mean the same physical page is handed
// out to two owners.
func (f *FrameTracker) Release() {
	if f.released {
		panic(fmt.Sprintf("pmm: frame %s released twice", f.ppn))
	}
	f.released = true
	Dealloc(f.ppn)
}

func (f *FrameTracker) String() string {
	return fmt.Sprintf("FrameTracker{%s}", f.ppn)
}
