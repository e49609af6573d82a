package proc

import (
	"unsafe"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pagetable"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
)

// KernelStack is a PID-indexed R|W region of the kernel's own memory
// set, with a guard page below every slot. Its lifetime is tied to the
// PCB that owns it: New maps the region, Release unmaps it. Like
// PIDHandle, there is no destructor to do this implicitly, so callers
// must Release exactly once.
type KernelStack struct {
	pid      PID
	kernelMS *memset.MemorySet
	released bool
}

// NewKernelStack inserts a framed R|W region into kernelMS at pid's
// slot, as computed by config.KernelStackSlot.
func NewKernelStack(pid PID, kernelMS *memset.MemorySet) *KernelStack {
	bottom, top := config.KernelStackSlot(int(pid))
	kernelMS.InsertFramedArea(mem.NewVirtAddr(bottom), mem.NewVirtAddr(top), pagetable.FlagR|pagetable.FlagW)
	return &KernelStack{pid: pid, kernelMS: kernelMS}
}

// Top returns the user-invisible kernel virtual address one past the
// top of the stack.
func (ks *KernelStack) Top() uint64 {
	_, top := config.KernelStackSlot(int(ks.pid))
	return top
}

// PushOnTop writes value just below the top of the stack and returns
// its kernel virtual address. Real trap setup goes through
// GotoTrapReturn instead, which points a fresh task at trap_return
// rather than a pushed TrapContext; PushOnTop is kept as the general
// "reserve and initialize a stack slot" primitive a future caller
// needing that shape can reach for.
func PushOnTop[T any](ks *KernelStack, arena *pmm.Arena, value T) uint64 {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	ptr := ks.Top() - size
	ref := pagetable.TranslatedRef[T](ks.kernelMS.Token(), arena, ptr)
	*ref = value
	return ptr
}

// Release unmaps the stack's region from the kernel memory set. It
// panics if called twice.
func (ks *KernelStack) Release() {
	if ks.released {
		panic("proc: KernelStack released twice")
	}
	ks.released = true
	bottom, _ := config.KernelStackSlot(int(ks.pid))
	vpn := mem.NewVirtAddr(bottom).ToVirtPageNum()
	ks.kernelMS.RemoveAreaWithStartVPN(vpn)
}
