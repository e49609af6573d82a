package syscall

import (
	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/hal"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/pagetable"
	"github.com/ogurioguri/cradles-os/kernel/proc"
	"github.com/ogurioguri/cradles-os/kernel/sched"
	"github.com/ogurioguri/cradles-os/kernel/trap"
)

// sysExit tears the current task down and reports trap.ErrTaskExited (or
// propagates a scheduler shutdown request) so Handler knows not to write
// a return value into a trap-context page that may no longer exist.
func sysExit(exitCode int32) (int64, error) {
	if err := sched.ExitCurrentAndRunNext(exitCode); err != nil {
		return 0, err
	}
	return 0, trap.ErrTaskExited
}

// sysYield re-queues the current task and always reports success.
func sysYield() int64 {
	sched.SuspendCurrentAndRunNext()
	return 0
}

// sysGetTime returns milliseconds since boot.
func sysGetTime() int64 {
	return int64(hal.NowTicks() / (config.ClockFreq / 1000))
}

// sysGetPID returns the calling task's PID.
func sysGetPID() int64 {
	pcb := sched.CurrentTask()
	if pcb == nil {
		panic("syscall: getpid with no current task")
	}
	return int64(pcb.PID())
}

// sysSbrk resizes the sbrk area rooted at the current task's HeapBottom
// by delta bytes and returns the old program break, or -1 if the
// request would move the break below its origin or the underlying
// resize fails.
func sysSbrk(delta int32) int64 {
	pcb := sched.CurrentTask()
	if pcb == nil {
		panic("syscall: sbrk with no current task")
	}

	g := pcb.Access()
	old := g.Get().ProgramBrk
	origin := g.Get().HeapBottom
	ms := g.Get().MemorySet
	g.Release()

	newBrk := int64(old) + int64(delta)
	if newBrk < int64(origin) {
		return -1
	}

	originVPN := mem.NewVirtAddr(origin).ToVirtPageNum()
	newEndVPN := mem.NewVirtAddr(uint64(newBrk)).CeilPage()

	var ok bool
	if delta >= 0 {
		ok = ms.AppendTo(originVPN, newEndVPN)
	} else {
		ok = ms.ShrinkTo(originVPN, newEndVPN)
	}
	if !ok {
		return -1
	}

	g = pcb.Access()
	g.Get().ProgramBrk = uint64(newBrk)
	g.Release()

	return int64(old)
}

// sysFork clones the current task via from_existing_user semantics,
// zeroes the child's a0 (fork returns 0 in the child), enqueues it, and
// returns the child's PID to the parent.
func sysFork() int64 {
	parent := sched.CurrentTask()
	if parent == nil {
		panic("syscall: fork with no current task")
	}

	child := parent.Fork(arena, kernelMS, trap.ReturnAddr())
	parent.AddChild(child)

	g := child.Access()
	ppn := g.Get().TrapContextPPN
	g.Release()
	trap.ContextAt(arena, ppn).SetReturnValue(0)

	sched.AddTask(child)
	return int64(child.PID())
}

// sysExec reads a NUL-terminated path from the caller's memory, looks it
// up in the registered app table, and replaces the current task's memory
// set in place, rewriting its trap context for the new program's entry
// point. Returns -1 without replacing anything if the name is unknown.
func sysExec(pathPtr uint64) int64 {
	pcb := sched.CurrentTask()
	if pcb == nil {
		panic("syscall: exec with no current task")
	}

	token := sched.CurrentUserToken()
	name := string(pagetable.TranslatedString(token, arena, pathPtr))

	data, ok := lookupApp(name)
	if !ok {
		return -1
	}

	kernelSatp := kernelMS.Token()
	entry, userSP := pcb.Exec(arena, data)
	kernelSP := pcb.KernelStackTop()

	g := pcb.Access()
	ppn := g.Get().TrapContextPPN
	g.Release()

	*trap.ContextAt(arena, ppn) = trap.NewContext(entry, userSP, kernelSatp, kernelSP, trap.ReturnAddr())
	return 0
}

// sysWaitpid reaps a zombie child: pid=-1 matches any child. Returns -1
// if no child matches pid at all, -2 if a match exists but none have
// exited yet, or the reaped child's PID with its exit code written to
// statusPtr (when non-null).
func sysWaitpid(pid int32, statusPtr uint64) int64 {
	parent := sched.CurrentTask()
	if parent == nil {
		panic("syscall: waitpid with no current task")
	}

	g := parent.Access()
	children := g.Get().Children
	g.Release()

	matchedAny := false
	for i, child := range children {
		if pid != -1 && int64(child.PID()) != int64(pid) {
			continue
		}
		matchedAny = true

		cg := child.Access()
		isZombie := cg.Get().Status == proc.Zombie
		exitCode := cg.Get().ExitCode
		cg.Release()
		if !isZombie {
			continue
		}

		remaining := make([]*proc.PCB, 0, len(children)-1)
		remaining = append(remaining, children[:i]...)
		remaining = append(remaining, children[i+1:]...)

		g = parent.Access()
		g.Get().Children = remaining
		g.Release()

		childPID := child.PID()
		child.Release()

		if statusPtr != 0 {
			token := sched.CurrentUserToken()
			*pagetable.TranslatedRef[int32](token, arena, statusPtr) = exitCode
		}
		return int64(childPID)
	}

	if !matchedAny {
		return -1
	}
	return -2
}
