package sched

import (
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/proc"
	ksync "github.com/ogurioguri/cradles-os/kernel/sync"
)

// Processor is the per-hart scheduling state: the task currently
// running (if any) and the idle context RunTasks switches out of and
// switchToIdle switches back into.
type Processor struct {
	current *proc.PCB
	idleCx  proc.TaskContext
}

var globalProcessor = ksync.NewUPCell(Processor{})

// TakeCurrentTask removes and returns the currently running task,
// leaving no current task. Used by Suspend/Exit, which take ownership
// of the task to either requeue or tear down.
func TakeCurrentTask() *proc.PCB {
	g := globalProcessor.Access()
	defer g.Release()
	pcb := g.Get().current
	g.Get().current = nil
	return pcb
}

// CurrentTask returns the currently running task without removing it,
// or nil if the hart is idle.
func CurrentTask() *proc.PCB {
	g := globalProcessor.Access()
	defer g.Release()
	return g.Get().current
}

// CurrentUserToken returns the SATP token of the currently running
// task's memory set. It panics if there is no current task.
func CurrentUserToken() uint64 {
	task := CurrentTask()
	if task == nil {
		panic("sched: no current task")
	}
	g := task.Access()
	defer g.Release()
	return g.Get().MemorySet.Token()
}

// CurrentTrapContextPPN returns the physical page backing the currently
// running task's trap context. It panics if there is no current task.
func CurrentTrapContextPPN() mem.PhysPageNum {
	task := CurrentTask()
	if task == nil {
		panic("sched: no current task")
	}
	g := task.Access()
	defer g.Release()
	return g.Get().TrapContextPPN
}
