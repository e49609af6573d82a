package sched

import (
	"errors"

	"github.com/ogurioguri/cradles-os/kernel/proc"
)

// ErrShutdown is returned by RunTasks (via ExitCurrentAndRunNext) when
// the idle process, PID 0, exits cleanly. It is the scheduler's signal
// to the boot sequence that there is nothing left to run.
var ErrShutdown = errors.New("sched: shutdown requested")

// ErrShutdownFailure is ErrShutdown's counterpart for a nonzero exit
// code from the idle process.
var ErrShutdownFailure = errors.New("sched: shutdown requested with a nonzero exit code")

// idlePID is the PID reserved for the kernel's own bootstrap task; its
// exit short-circuits straight to shutdown rather than being reaped by
// a parent, since it has none. It is a var rather than a const only so
// tests can point it at whatever PID they actually allocated for their
// idle task, since the PID allocator is a process-wide singleton and
// doesn't reliably hand out 0 once other tests have run first.
var idlePID = proc.PID(0)

var initProc *proc.PCB

// SetInitProc records the process that orphaned children are reparented
// to. It must be called once during boot, before any process can exit
// with children of its own.
func SetInitProc(pcb *proc.PCB) { initProc = pcb }

// InitProc returns the init process, or nil before SetInitProc has run.
func InitProc() *proc.PCB { return initProc }

// RunTasks is the hart's scheduling loop: while the ready queue is
// non-empty, pop a task, mark it Running, switch the hart's idle
// context out for the task's saved one, and hand control to step. step
// represents everything that happens while the task is "running" — in
// practice, driving it through the trap dispatcher until it calls
// SuspendCurrentAndRunNext or ExitCurrentAndRunNext, which switch the
// idle context back in before step returns. RunTasks returns nil once
// the ready queue drains, or the error step returns (typically
// ErrShutdown).
func RunTasks(step func(pcb *proc.PCB) error) error {
	for {
		pcb := FetchTask()
		if pcb == nil {
			return nil
		}

		g := pcb.Access()
		g.Get().Status = proc.Running
		taskCxPtr := &g.Get().TaskCx
		g.Release()

		p := globalProcessor.Access()
		p.Get().current = pcb
		idleCxPtr := &p.Get().idleCx
		p.Release()

		Switch(idleCxPtr, taskCxPtr)

		if err := step(pcb); err != nil {
			return err
		}
	}
}

// switchToIdle hands control back to RunTasks's caller by swapping the
// task's saved context back out for the processor's idle one.
func switchToIdle(taskCxPtr *proc.TaskContext) {
	p := globalProcessor.Access()
	idleCxPtr := &p.Get().idleCx
	p.Release()
	Switch(taskCxPtr, idleCxPtr)
}

// SuspendCurrentAndRunNext takes the running task, marks it Ready,
// re-enqueues it at the back of the FIFO ready queue, and switches the
// idle context back in.
func SuspendCurrentAndRunNext() {
	pcb := TakeCurrentTask()
	if pcb == nil {
		panic("sched: suspend with no current task")
	}

	g := pcb.Access()
	g.Get().Status = proc.Ready
	taskCxPtr := &g.Get().TaskCx
	g.Release()

	AddTask(pcb)
	switchToIdle(taskCxPtr)
}

// ExitCurrentAndRunNext takes the running task, marks it Zombie with
// the given exit code, reparents its children to the init process,
// releases its user memory (but not its PCB shell, which survives until
// a parent's waitpid reaps it), and switches the idle context back in.
// Exiting PID 0, the idle process, returns ErrShutdown or
// ErrShutdownFailure instead, short-circuiting straight to shutdown
// since it has no parent to reap it.
func ExitCurrentAndRunNext(exitCode int32) error {
	pcb := TakeCurrentTask()
	if pcb == nil {
		panic("sched: exit with no current task")
	}

	if pcb.PID() == idlePID {
		if exitCode != 0 {
			return ErrShutdownFailure
		}
		return ErrShutdown
	}

	g := pcb.Access()
	g.Get().Status = proc.Zombie
	g.Get().ExitCode = exitCode
	children := g.Get().Children
	g.Get().Children = nil
	g.Get().MemorySet.RecycleDataPages()
	taskCxPtr := &g.Get().TaskCx
	g.Release()

	reparentChildren(children)

	switchToIdle(taskCxPtr)
	return nil
}

// reparentChildren hands every child of an exiting process to the init
// process, breaking the parent/child ownership cycle the exiting PCB
// would otherwise leave dangling.
func reparentChildren(children []*proc.PCB) {
	if initProc == nil {
		return
	}
	for _, child := range children {
		initProc.AddChild(child)
	}
}
