package syscall

import (
	"strings"
	"testing"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pagetable"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	"github.com/ogurioguri/cradles-os/kernel/proc"
	"github.com/ogurioguri/cradles-os/kernel/sched"
	"github.com/ogurioguri/cradles-os/kernel/trap"
)

func newSyscallTestArena(t *testing.T) *pmm.Arena {
	t.Helper()
	arena := pmm.NewArena(0, 8192*config.PageSize)
	pmm.Init(arena, 0, 8192)
	return arena
}

func newSyscallTestKernelMS(arena *pmm.Arena) *memset.MemorySet {
	return memset.NewKernel(arena, memset.KernelImageLayout{
		TextStart: 0x8020_0000, TextEnd: 0x8020_1000,
		RodataStart: 0x8020_1000, RodataEnd: 0x8020_2000,
		DataStart: 0x8020_2000, DataEnd: 0x8020_3000,
		BSSStart: 0x8020_3000, BSSEnd: 0x8020_4000,
		KernelEnd: 0x8020_4000,
	})
}

// buildTestElfImage is a minimal one-LOAD-segment ELF64 image, readable,
// writable and executable so its body doubles as a scratch user buffer
// that both sysWrite (reads it) and sysRead (writes into it) can use.
func buildTestElfImage(entry uint64) []byte {
	text := []byte(strings.Repeat("user program body for syscall tests. ", 8))

	const ehdrSize = 64
	const phdrSize = 56
	phOff := uint64(ehdrSize)
	segOff := phOff + phdrSize

	buf := make([]byte, segOff+uint64(len(text)))
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 2
	buf[5] = 1

	put64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	put32 := func(off int, v uint32) {
		for i := 0; i < 4; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	put16 := func(off int, v uint16) {
		for i := 0; i < 2; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}

	put64(24, entry)
	put64(32, phOff)
	put16(54, phdrSize)
	put16(56, 1)

	const ptLoad = 1
	const pfRead, pfWrite, pfExec = 1 << 2, 1 << 1, 1 << 0
	put32(int(phOff)+0, ptLoad)
	put32(int(phOff)+4, pfRead|pfWrite|pfExec)
	put64(int(phOff)+8, segOff)
	put64(int(phOff)+16, entry)
	put64(int(phOff)+32, uint64(len(text)))
	put64(int(phOff)+40, uint64(len(text)))
	copy(buf[segOff:], text)

	return buf
}

// runOnce wires arena/kernelMS into this package's injected singletons,
// builds and enqueues a single task, and drives it through RunTasks with
// body as the step callback, mirroring kernel/trap's helper of the same
// shape. body runs with the task already installed as current, so it
// can call sys* functions (and inspect its own PCB) directly.
func runOnce(t *testing.T, entry uint64, body func(pcb *proc.PCB) error) (arena *pmm.Arena, err error) {
	t.Helper()
	arena = newSyscallTestArena(t)
	kernelMS := newSyscallTestKernelMS(arena)
	Init(arena, kernelMS)

	pcb, _, _ := proc.NewPCB(arena, kernelMS, buildTestElfImage(entry), trap.ReturnAddr())
	sched.AddTask(pcb)
	err = sched.RunTasks(body)
	return arena, err
}

// trapContextA0 reads x10 (a0) out of the trap context at ppn directly,
// the way a forked parent would inspect the value fork left behind in
// its child without that child ever actually running.
func trapContextA0(arena *pmm.Arena, ppn mem.PhysPageNum) uint64 {
	const regA0 = 10
	return trap.ContextAt(arena, ppn).X[regA0]
}

// writeCString writes a NUL-terminated string into the caller's current
// address space at addr and returns addr, the way a user program's libc
// would lay out an argument to exec before trapping into the kernel.
func writeCString(t *testing.T, token uint64, pcb *proc.PCB, addr uint64, s string) uint64 {
	t.Helper()
	chunks := pagetable.TranslatedByteBuffers(token, arena, addr, len(s)+1)
	data := append([]byte(s), 0)
	off := 0
	for _, chunk := range chunks {
		off += copy(chunk, data[off:])
	}
	return addr
}

// readInt32 reads a little-endian int32 out of the caller's current
// address space at addr, the way a user program would read back the
// exit status waitpid wrote for it.
func readInt32(arena *pmm.Arena, token uint64, addr uint64) int32 {
	return *pagetable.TranslatedRef[int32](token, arena, addr)
}
