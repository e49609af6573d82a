package harness

import (
	"errors"
	"fmt"

	"github.com/ogurioguri/cradles-os/internal/userprog"
	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/hal"
	"github.com/ogurioguri/cradles-os/kernel/memset"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	"github.com/ogurioguri/cradles-os/kernel/proc"
	"github.com/ogurioguri/cradles-os/kernel/sched"
	"github.com/ogurioguri/cradles-os/kernel/syscall"
	"github.com/ogurioguri/cradles-os/kernel/trap"
)

// entryVA is the address every assembled program is built and mapped
// at. Scenarios never run concurrently within a process, so every
// program can safely reuse the same user virtual address.
const entryVA = 0x1000

var kernelLayout = memset.KernelImageLayout{
	TextStart: 0x8020_0000, TextEnd: 0x8020_1000,
	RodataStart: 0x8020_1000, RodataEnd: 0x8020_2000,
	DataStart: 0x8020_2000, DataEnd: 0x8020_3000,
	BSSStart: 0x8020_3000, BSSEnd: 0x8020_4000,
	KernelEnd: 0x8020_4000,
}

// Run assembles every program named in s.Programs, schedules s.Tasks as
// independent initial processes, and drives them to completion through
// the real frame allocator, page tables, trap dispatcher, and syscall
// table. It returns the console transcript produced along the way.
func Run(s Scenario) ([]byte, error) {
	console := hal.NewFakeConsole()
	hal.SetConsole(console)
	hal.SetTimerDevice(hal.NewFakeTimer())

	arena := pmm.NewArena(0, 8192*config.PageSize)
	pmm.Init(arena, 0, 8192)
	kernelMS := memset.NewKernel(arena, kernelLayout)
	syscall.Init(arena, kernelMS)

	runner := userprog.NewRunner()
	programs := map[string]*userprog.Program{}
	for name, tape := range s.Programs {
		prog, err := Assemble(entryVA, name, tape)
		if err != nil {
			return nil, err
		}
		programs[name] = prog
		runner.Install(prog)
		syscall.RegisterApp(name, userprog.Build(entryVA, *prog))
	}

	var initPCB *proc.PCB
	for _, taskName := range s.Tasks {
		prog, ok := programs[taskName]
		if !ok {
			return nil, fmt.Errorf("harness: scenario %q: task %q has no matching program", s.Name, taskName)
		}

		pcb, _, _ := proc.NewPCB(arena, kernelMS, userprog.Build(entryVA, *prog), trap.ReturnAddr())
		runner.Attach(pcb.PID(), prog)
		sched.AddTask(pcb)

		if taskName == s.InitTask {
			initPCB = pcb
		}
	}
	// Always set, even to nil: sched.InitProc is a package-level global
	// that would otherwise leak a stale PCB from a previous scenario run
	// in the same test binary into this one.
	sched.SetInitProc(initPCB)

	err := sched.RunTasks(runner.Step(arena, syscall.Dispatch))
	if err != nil && !errors.Is(err, sched.ErrShutdown) && !errors.Is(err, sched.ErrShutdownFailure) {
		return console.Output(), err
	}
	return console.Output(), nil
}
