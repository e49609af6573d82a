package proc

import (
	"testing"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
)

func newProcTestArena(t *testing.T) *pmm.Arena {
	t.Helper()
	arena := pmm.NewArena(0, 8192*config.PageSize)
	pmm.Init(arena, 0, 8192)
	return arena
}

func buildMinimalELF(t *testing.T, entry uint64) []byte {
	t.Helper()
	text := []byte("user program body padded to a handful of bytes")

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

func newKernelMSForTest(arena *pmm.Arena) *memset.MemorySet {
	return memset.NewKernel(arena, memset.KernelImageLayout{
		TextStart: 0x8020_0000, TextEnd: 0x8020_1000,
		RodataStart: 0x8020_1000, RodataEnd: 0x8020_2000,
		DataStart: 0x8020_2000, DataEnd: 0x8020_3000,
		BSSStart: 0x8020_3000, BSSEnd: 0x8020_4000,
		KernelEnd: 0x8020_4000,
	})
}

func TestNewPCBBuildsProcessWithReadyStatus(t *testing.T) {
	arena := newProcTestArena(t)
	kernelMS := newKernelMSForTest(arena)
	image := buildMinimalELF(t, 0x1000)

	pcb, entry, sp := NewPCB(arena, kernelMS, image, config.Trampoline+4)
	if entry != 0x1000 {
		t.Errorf("expected entry 0x1000, got %#x", entry)
	}
	if sp == 0 {
		t.Error("expected a non-zero initial user sp")
	}

	g := pcb.Access()
	defer g.Release()
	if g.Get().Status != Ready {
		t.Errorf("expected a freshly built process to be Ready, got %s", g.Get().Status)
	}
	if g.Get().BaseSize != sp {
		t.Errorf("expected BaseSize to equal the initial sp")
	}
}

func TestPCBAccessPanicsOnReentry(t *testing.T) {
	arena := newProcTestArena(t)
	kernelMS := newKernelMSForTest(arena)
	pcb, _, _ := NewPCB(arena, kernelMS, buildMinimalELF(t, 0x1000), config.Trampoline+4)

	g := pcb.Access()
	defer g.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a reentrant Access to panic")
		}
	}()
	pcb.Access()
}

func TestForkCreatesIndependentMemorySet(t *testing.T) {
	arena := newProcTestArena(t)
	kernelMS := newKernelMSForTest(arena)
	parent, _, _ := NewPCB(arena, kernelMS, buildMinimalELF(t, 0x1000), config.Trampoline+4)

	child := parent.Fork(arena, kernelMS, config.Trampoline+4)
	if child.PID() == parent.PID() {
		t.Fatal("expected the child to have a distinct pid")
	}

	textVPN := mem.NewVirtAddr(0x1000).ToVirtPageNum()
	pg := parent.Access()
	parentPTE, _ := pg.Get().MemorySet.Translate(textVPN)
	pg.Release()

	cg := child.Access()
	childPTE, _ := cg.Get().MemorySet.Translate(textVPN)
	cg.Release()

	if parentPTE.PPN() == childPTE.PPN() {
		t.Error("expected fork to copy the frame, not share it")
	}
}

func TestAddChildLinksBothDirections(t *testing.T) {
	arena := newProcTestArena(t)
	kernelMS := newKernelMSForTest(arena)
	parent, _, _ := NewPCB(arena, kernelMS, buildMinimalELF(t, 0x1000), config.Trampoline+4)
	child, _, _ := NewPCB(arena, kernelMS, buildMinimalELF(t, 0x2000), config.Trampoline+4)

	parent.AddChild(child)

	pg := parent.Access()
	children := pg.Get().Children
	pg.Release()
	if len(children) != 1 || children[0] != child {
		t.Fatal("expected parent to list child in Children")
	}

	cg := child.Access()
	parentBack := cg.Get().Parent
	cg.Release()
	if parentBack != parent {
		t.Fatal("expected child's Parent to point back at parent")
	}
}

func TestExecReplacesMemorySetAndReleasesOld(t *testing.T) {
	arena := newProcTestArena(t)
	kernelMS := newKernelMSForTest(arena)
	pcb, _, _ := NewPCB(arena, kernelMS, buildMinimalELF(t, 0x1000), config.Trampoline+4)

	g := pcb.Access()
	oldTextVPN := mem.NewVirtAddr(0x1000).ToVirtPageNum()
	oldPTE, ok := g.Get().MemorySet.Translate(oldTextVPN)
	g.Release()
	if !ok {
		t.Fatal("expected the original memory set to map its text page")
	}

	entry, sp := pcb.Exec(arena, buildMinimalELF(t, 0x2000))
	if entry != 0x2000 {
		t.Errorf("expected the new entry 0x2000, got %#x", entry)
	}
	if sp == 0 {
		t.Error("expected a non-zero new user sp")
	}

	g = pcb.Access()
	newTextVPN := mem.NewVirtAddr(0x2000).ToVirtPageNum()
	_, mapped := g.Get().MemorySet.Translate(newTextVPN)
	if !mapped {
		t.Error("expected the replacement memory set to map the new entry page")
	}
	if g.Get().BaseSize != sp || g.Get().ProgramBrk != sp || g.Get().HeapBottom != sp {
		t.Error("expected Exec to reset BaseSize/ProgramBrk/HeapBottom to the new sp")
	}
	g.Release()

	// Exec's Destroy call should already have recycled the old text
	// frame; deallocating it again must panic the same way any
	// double-Dealloc does, confirming Exec didn't just drop the
	// reference and leak it.
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the old text frame to already be recycled by Exec")
			}
		}()
		pmm.Dealloc(oldPTE.PPN())
	}()
}

func TestKernelStackTopMatchesConfiguredSlot(t *testing.T) {
	arena := newProcTestArena(t)
	kernelMS := newKernelMSForTest(arena)
	pcb, _, _ := NewPCB(arena, kernelMS, buildMinimalELF(t, 0x1000), config.Trampoline+4)

	_, want := config.KernelStackSlot(int(pcb.PID()))
	if got := pcb.KernelStackTop(); got != want {
		t.Errorf("expected KernelStackTop %#x, got %#x", want, got)
	}
}

func TestReleaseReturnsPIDAndTeardownMemorySet(t *testing.T) {
	arena := newProcTestArena(t)
	kernelMS := newKernelMSForTest(arena)
	pcb, _, _ := NewPCB(arena, kernelMS, buildMinimalELF(t, 0x1000), config.Trampoline+4)
	pid := pcb.PID()

	pcb.Release()

	reused := AllocPID()
	if reused.PID() != pid {
		t.Errorf("expected the released pid %d to be recycled, got %d", pid, reused.PID())
	}
	reused.Release()
}
