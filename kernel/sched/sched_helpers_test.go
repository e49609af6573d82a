package sched

import (
	"testing"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	"github.com/ogurioguri/cradles-os/kernel/proc"
)

// resetSchedulerState clears the package-level ready queue, processor,
// and init process between tests, which a real boot only ever does
// once.
func resetSchedulerState() {
	g := globalManager.Access()
	g.Get().ready = nil
	g.Release()

	p := globalProcessor.Access()
	p.Get().current = nil
	p.Get().idleCx = proc.TaskContext{}
	p.Release()

	initProc = nil
}

func newSchedTestArena(t *testing.T) *pmm.Arena {
	t.Helper()
	arena := pmm.NewArena(0, 8192*config.PageSize)
	pmm.Init(arena, 0, 8192)
	return arena
}

func newSchedTestKernelMS(arena *pmm.Arena) *memset.MemorySet {
	return memset.NewKernel(arena, memset.KernelImageLayout{
		TextStart: 0x8020_0000, TextEnd: 0x8020_1000,
		RodataStart: 0x8020_1000, RodataEnd: 0x8020_2000,
		DataStart: 0x8020_2000, DataEnd: 0x8020_3000,
		BSSStart: 0x8020_3000, BSSEnd: 0x8020_4000,
		KernelEnd: 0x8020_4000,
	})
}

func buildTestElfImage(entry uint64) []byte {
	text := []byte("user program body for scheduler tests")

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
	const pfRead, pfExec = 1 << 2, 1 << 0
	put32(int(phOff)+0, ptLoad)
	put32(int(phOff)+4, pfRead|pfExec)
	put64(int(phOff)+8, segOff)
	put64(int(phOff)+16, entry)
	put64(int(phOff)+32, uint64(len(text)))
	put64(int(phOff)+40, uint64(len(text)))
	copy(buf[segOff:], text)

	return buf
}

func newTestPCB(t *testing.T, arena *pmm.Arena, kernelMS *memset.MemorySet, entry uint64) *proc.PCB {
	t.Helper()
	pcb, _, _ := proc.NewPCB(arena, kernelMS, buildTestElfImage(entry), config.Trampoline+4)
	return pcb
}
