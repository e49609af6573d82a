// Package config collects the board- and build-time constants that the
// rest of the kernel treats as given: page geometry, memory layout
// boundaries, and the fixed addresses every address space agrees on.
package config

const (
	// PageShift is log2(PageSize); shifting an address right by PageShift
	// yields its page number.
	PageShift = 12

	// PageSize is the size in bytes of a physical or virtual page.
	PageSize = 1 << PageShift

	// KernelHeapSize is the size in bytes of the region handed to the
	// buddy allocator that backs supervisor-mode dynamic memory.
	KernelHeapSize = 0x30_0000 // 3 MiB

	// ClockFreq is the QEMU virt board's timer frequency in Hz.
	ClockFreq = 12_500_000

	// MemoryEnd is the first physical address past the RAM region
	// managed by the frame allocator.
	MemoryEnd = 0x8080_0000

	// KernelStackSize and UserStackSize are the sizes in bytes of the
	// per-process kernel and user stacks, guard pages excluded.
	KernelStackSize = 8192
	UserStackSize   = 8192

	// Trampoline is the top of the 39-bit virtual address space: the
	// highest page-aligned address representable, mapped identically
	// (R|X) into every address space.
	Trampoline = ^uint64(0) - PageSize + 1

	// TrapContext is the user virtual address of the per-process trap
	// context page, one page below the trampoline, mapped R|W and
	// kernel-private.
	TrapContext = Trampoline - PageSize
)

// MMIORegion describes a physical address range that the kernel address
// space identity-maps R|W because it is memory-mapped device state rather
// than RAM.
type MMIORegion struct {
	Name  string
	Base  uint64
	Size  uint64
}

// MMIORegions lists the MMIO windows of the QEMU virt board that the
// kernel identity-maps alongside RAM. UART and CLINT are load-bearing for
// the console and timer interfaces; VirtIO is mapped so block-device
// drivers (out of scope for this subsystem) have a usable address range
// without requiring a second kernel memory-set rebuild.
var MMIORegions = []MMIORegion{
	{Name: "uart0", Base: 0x1000_0000, Size: 0x1000},
	{Name: "clint", Base: 0x0200_0000, Size: 0x1_0000},
	{Name: "virtio0", Base: 0x1000_1000, Size: 0x1000},
}

// KernelStackSlot returns the virtual address range [bottom, top) of the
// kernel stack reserved for pid, counting down from the trampoline with a
// page-sized guard between slots.
func KernelStackSlot(pid int) (bottom, top uint64) {
	top = Trampoline - uint64(pid)*(KernelStackSize+PageSize)
	bottom = top - KernelStackSize
	return bottom, top
}
