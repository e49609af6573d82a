package userprog

import (
	"errors"
	"testing"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/hal"
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	"github.com/ogurioguri/cradles-os/kernel/proc"
	"github.com/ogurioguri/cradles-os/kernel/sched"
	"github.com/ogurioguri/cradles-os/kernel/syscall"
	"github.com/ogurioguri/cradles-os/kernel/trap"
)

func newRunnerTestArena(t *testing.T) *pmm.Arena {
	t.Helper()
	arena := pmm.NewArena(0, 8192*config.PageSize)
	pmm.Init(arena, 0, 8192)
	return arena
}

func newRunnerTestKernelMS(arena *pmm.Arena) *memset.MemorySet {
	return memset.NewKernel(arena, memset.KernelImageLayout{
		TextStart: 0x8020_0000, TextEnd: 0x8020_1000,
		RodataStart: 0x8020_1000, RodataEnd: 0x8020_2000,
		DataStart: 0x8020_2000, DataEnd: 0x8020_3000,
		BSSStart: 0x8020_3000, BSSEnd: 0x8020_4000,
		KernelEnd: 0x8020_4000,
	})
}

// requireCleanStop accepts either a drained ready queue or a shutdown
// request as "the loop ended on its own": whichever PCB the test
// allocates first may land on PID 0, the PID sched.ExitCurrentAndRunNext
// treats as the idle process, and an Exit op on it legitimately returns
// sched.ErrShutdown/ErrShutdownFailure instead of nil. These tests care
// about the tape having run to completion, not about which of those two
// shapes that completion took.
func requireCleanStop(t *testing.T, err error) {
	t.Helper()
	if err == nil || errors.Is(err, sched.ErrShutdown) || errors.Is(err, sched.ErrShutdownFailure) {
		return
	}
	t.Fatalf("unexpected RunTasks error: %v", err)
}

func TestRunnerDrivesWriteThenExit(t *testing.T) {
	console := hal.NewFakeConsole()
	hal.SetConsole(console)

	const entry = 0x1000
	msg := []byte("hello from a tape\n")
	scratch := make([]byte, 256)
	copy(scratch, msg)

	prog := &Program{Name: "hello", Ops: []Op{
		Write(1, entry, uint64(len(msg))),
		Exit(7),
	}, Scratch: scratch}

	arena := newRunnerTestArena(t)
	kernelMS := newRunnerTestKernelMS(arena)
	syscall.Init(arena, kernelMS)

	pcb, _, _ := proc.NewPCB(arena, kernelMS, Build(entry, *prog), trap.ReturnAddr())
	runner := NewRunner()
	runner.Attach(pcb.PID(), prog)
	sched.AddTask(pcb)

	err := sched.RunTasks(runner.Step(arena, syscall.Dispatch))
	requireCleanStop(t, err)
	if string(console.Output()) != string(msg) {
		t.Fatalf("got console output %q, want %q", console.Output(), msg)
	}
}

func TestRunnerExitsCleanlyWhenTapeRunsOut(t *testing.T) {
	hal.SetConsole(hal.NewFakeConsole())

	const entry = 0x1000
	prog := &Program{Name: "empty", Scratch: make([]byte, 64)}

	arena := newRunnerTestArena(t)
	kernelMS := newRunnerTestKernelMS(arena)
	syscall.Init(arena, kernelMS)

	pcb, _, _ := proc.NewPCB(arena, kernelMS, Build(entry, *prog), trap.ReturnAddr())
	runner := NewRunner()
	runner.Attach(pcb.PID(), prog)
	sched.AddTask(pcb)

	requireCleanStop(t, sched.RunTasks(runner.Step(arena, syscall.Dispatch)))
}

func TestRunnerAttachesForkedChildAtParentsTapePosition(t *testing.T) {
	hal.SetConsole(hal.NewFakeConsole())

	const entry = 0x1000
	prog := &Program{Name: "forker", Ops: []Op{
		Fork(),
		Exit(0),
	}, Scratch: make([]byte, 64)}

	arena := newRunnerTestArena(t)
	kernelMS := newRunnerTestKernelMS(arena)
	syscall.Init(arena, kernelMS)

	pcb, _, _ := proc.NewPCB(arena, kernelMS, Build(entry, *prog), trap.ReturnAddr())
	runner := NewRunner()
	runner.Attach(pcb.PID(), prog)
	sched.AddTask(pcb)

	seenChild := false
	err := sched.RunTasks(func(p *proc.PCB) error {
		if p.PID() != pcb.PID() {
			seenChild = true
			runner.mu.Lock()
			childProg := runner.programs[p.PID()]
			childPos := runner.pos[p.PID()]
			runner.mu.Unlock()
			if childProg != prog {
				t.Errorf("expected forked child to inherit the parent's program")
			}
			if childPos != 1 {
				t.Errorf("expected forked child to resume at tape position 1, got %d", childPos)
			}
		}
		return runner.Step(arena, syscall.Dispatch)(p)
	})
	requireCleanStop(t, err)
	if !seenChild {
		t.Fatal("expected the forked child to be scheduled")
	}
}

func TestRunnerForkThenExecRunsChildOnTheNamedProgram(t *testing.T) {
	console := hal.NewFakeConsole()
	hal.SetConsole(console)

	const entry = 0x1000
	const pathOff = 64

	child := &Program{Name: "child", Ops: []Op{
		Write(1, entry, 5),
		Exit(0),
	}, Scratch: []byte("howdy")}
	syscall.RegisterApp(child.Name, Build(entry, *child))

	parentScratch := make([]byte, 128)
	copy(parentScratch[pathOff:], append([]byte(child.Name), 0))
	parent := &Program{Name: "parent", Ops: []Op{
		ForkThenExec(entry + pathOff),
		Exit(0),
	}, Scratch: parentScratch}

	arena := newRunnerTestArena(t)
	kernelMS := newRunnerTestKernelMS(arena)
	syscall.Init(arena, kernelMS)

	pcb, _, _ := proc.NewPCB(arena, kernelMS, Build(entry, *parent), trap.ReturnAddr())
	runner := NewRunner()
	runner.Install(child)
	runner.Attach(pcb.PID(), parent)
	sched.AddTask(pcb)

	err := sched.RunTasks(runner.Step(arena, syscall.Dispatch))
	requireCleanStop(t, err)
	if string(console.Output()) != "howdy" {
		t.Fatalf("expected the forked-then-exec'd child to run %q's tape and write %q, got %q", child.Name, "howdy", console.Output())
	}
}
