// Command kmain boots the hosted kernel: it plays the part of the rt0
// assembly stub and linker script a real RISC-V image would have,
// standing up the frame allocator, kernel heap, and kernel address space
// before handing control to the scheduler.
package main

import (
	"os"

	"github.com/ogurioguri/cradles-os/internal/tty"
	"github.com/ogurioguri/cradles-os/internal/userprog"
	"github.com/ogurioguri/cradles-os/kernel"
	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/hal"
	"github.com/ogurioguri/cradles-os/kernel/heap"
	"github.com/ogurioguri/cradles-os/kernel/kfmt"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	"github.com/ogurioguri/cradles-os/kernel/proc"
	"github.com/ogurioguri/cradles-os/kernel/sched"
	"github.com/ogurioguri/cradles-os/kernel/syscall"
	"github.com/ogurioguri/cradles-os/kernel/trap"
)

// errKmainReturned is raised if RunTasks ever returns without the idle
// process (PID 0) having exited — Kmain is not expected to return.
var errKmainReturned = &kernel.Error{Module: "kmain", Message: "RunTasks returned without a shutdown"}

// kernelImageLayout stands in for the addresses a real linker script
// would hand this kernel for its own .text/.rodata/.data/.bss; a hosted
// build has no such script, so these are plausible QEMU-virt-shaped
// placeholders consistent with config.MemoryEnd.
var kernelImageLayout = memset.KernelImageLayout{
	TextStart: 0x8020_0000, TextEnd: 0x8021_0000,
	RodataStart: 0x8021_0000, RodataEnd: 0x8021_8000,
	DataStart: 0x8021_8000, DataEnd: 0x8022_0000,
	BSSStart: 0x8022_0000, BSSEnd: 0x8023_0000,
	KernelEnd: 0x8023_0000,
}

const (
	frameCount = 1024 // 4 MiB of simulated RAM, page-granular, between KernelEnd and MemoryEnd
	userEntry  = 0x1000

	// kernelHeapBase sits well past MemoryEnd: the buddy allocator backs
	// itself with its own []byte (it is never indexed through the
	// Arena), so this address is bookkeeping only, the same way
	// rCore-tutorial's KERNEL_HEAP static array lives wherever the
	// linker happened to place the kernel's .bss.
	kernelHeapBase = 0x9000_0000
)

func main() {
	kfmt.SetOutputSink(os.Stdout)

	kernelEndPPN := mem.NewPhysAddr(kernelImageLayout.KernelEnd).ToPhysPageNum()
	arena := pmm.NewArena(mem.NewPhysAddr(kernelImageLayout.KernelEnd), frameCount*config.PageSize)
	pmm.Init(arena, kernelEndPPN, kernelEndPPN+frameCount)

	kernelHeap := heap.New()
	kernelHeap.Init(kernelHeapBase, config.KernelHeapSize)

	kernelMS := memset.NewKernel(arena, kernelImageLayout)
	if err := memset.SelfCheckKernelSpace(kernelMS, kernelImageLayout); err != nil {
		kfmt.Panic(&kernel.Error{Module: "kmain", Message: err.Error()})
	}

	console, timerDev, restore := installDevices()
	if restore != nil {
		defer restore()
	}
	hal.SetConsole(console)
	hal.SetTimerDevice(timerDev)

	syscall.Init(arena, kernelMS)

	runner := userprog.NewRunner()
	initPCB := bootInitProcess(arena, kernelMS, runner)

	sched.SetInitProc(initPCB)
	sched.AddTask(initPCB)

	trap.EnableTimerInterrupt()
	trap.SetNextTrigger()

	err := sched.RunTasks(runner.Step(arena, syscall.Dispatch))
	switch err {
	case sched.ErrShutdown:
		return
	case nil:
		kfmt.Panic(errKmainReturned)
	case sched.ErrShutdownFailure:
		kfmt.Panic(&kernel.Error{Module: "kmain", Message: "init process exited with a nonzero status"})
	default:
		kfmt.Panic(&kernel.Error{Module: "kmain", Message: errKmainReturned.Message + ": " + err.Error()})
	}
}

// installDevices wires a real terminal when stdin is a TTY,
// falling back to the in-memory fakes for a non-interactive demo run
// (piped output, CI, etc). The returned restore func undoes raw mode and
// must be called before the process exits.
func installDevices() (hal.Console, hal.Timer, func()) {
	console, err := tty.New(os.Stdin, os.Stdout)
	if err != nil {
		return hal.NewFakeConsole(), hal.NewFakeTimer(), nil
	}
	return console, tty.NewTimer(), func() { console.Restore() }
}

// bootInitProcess builds the scripted INITPROC tape: it forks a child
// that execs the "hello" program, reaps it with waitpid, then exits
// itself. A tape cannot loop on waitpid's result, so the call is made
// three times, which covers the child's exec, write and exit turns
// under FIFO scheduling. This exercises fork/exec/waitpid/write end to end the same way
// the original tutorial's user_shell/initproc pair does.
func bootInitProcess(arena *pmm.Arena, kernelMS *memset.MemorySet, runner *userprog.Runner) *proc.PCB {
	hello := &userprog.Program{
		Name: "hello",
		Ops: []userprog.Op{
			userprog.Write(1, userEntry, uint64(len(helloMsg))),
			userprog.Exit(0),
		},
		Scratch: append([]byte(nil), helloMsg...),
	}
	syscall.RegisterApp(hello.Name, userprog.Build(userEntry, *hello))
	runner.Install(hello)

	const helloPathOff = 256
	scratch := make([]byte, 512)
	copy(scratch[helloPathOff:], append([]byte(hello.Name), 0))

	const statusPtrOff = 384
	initProg := &userprog.Program{
		Name: "init",
		Ops: []userprog.Op{
			userprog.ForkThenExec(userEntry + helloPathOff),
			userprog.Waitpid(-1, userEntry+statusPtrOff),
			userprog.Waitpid(-1, userEntry+statusPtrOff),
			userprog.Waitpid(-1, userEntry+statusPtrOff),
			userprog.Exit(0),
		},
		Scratch: scratch,
	}

	pcb, _, _ := proc.NewPCB(arena, kernelMS, userprog.Build(userEntry, *initProg), trap.ReturnAddr())
	runner.Attach(pcb.PID(), initProg)
	return pcb
}

var helloMsg = []byte("hello from cradles-os\n")
