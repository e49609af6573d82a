package userprog

import (
	"sync"

	"github.com/ogurioguri/cradles-os/kernel/pagetable"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	"github.com/ogurioguri/cradles-os/kernel/proc"
	"github.com/ogurioguri/cradles-os/kernel/sched"
	"github.com/ogurioguri/cradles-os/kernel/syscall"
	"github.com/ogurioguri/cradles-os/kernel/trap"
)

const (
	regA0 = 10
	regA7 = 17
)

// Runner tracks each running task's position on its own tape and
// drives it one Op per scheduling slice, standing in for the hart
// fetching and decoding real instructions between traps.
type Runner struct {
	mu       sync.Mutex
	byName   map[string]*Program
	programs map[proc.PID]*Program
	pos      map[proc.PID]int
}

// NewRunner returns an empty Runner. Register names via Install before
// any Exec op can resolve them.
func NewRunner() *Runner {
	return &Runner{
		byName:   make(map[string]*Program),
		programs: make(map[proc.PID]*Program),
		pos:      make(map[proc.PID]int),
	}
}

// Install records prog under its own Name, so a later Exec op whose
// path resolves to that name picks it up after the exec succeeds.
func (r *Runner) Install(prog *Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[prog.Name] = prog
}

// Attach starts pid at the beginning of prog's tape.
func (r *Runner) Attach(pid proc.PID, prog *Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[pid] = prog
	r.pos[pid] = 0
}

// Detach drops pid's tape position, called once its PCB has been
// reaped so the maps don't grow without bound across a long run.
func (r *Runner) Detach(pid proc.PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.programs, pid)
	delete(r.pos, pid)
}

// Step returns a sched.RunTasks callback that advances whichever task
// RunTasks hands it by exactly one Op: it loads the Op's syscall number
// and arguments into the trap context the way ecall would, then runs
// it through trap.Handler with dispatch exactly as a real UserEnvCall
// trap would. A task that runs off the end of its tape exits cleanly
// with code 0, matching a user program falling through main's return.
func (r *Runner) Step(arena *pmm.Arena, dispatch trap.Dispatcher) func(pcb *proc.PCB) error {
	return func(pcb *proc.PCB) error {
		pid := pcb.PID()

		r.mu.Lock()
		prog := r.programs[pid]
		i := r.pos[pid]
		r.mu.Unlock()

		if prog == nil || i >= len(prog.Ops) {
			r.Detach(pid)
			return sched.ExitCurrentAndRunNext(0)
		}
		op := prog.Ops[i]

		r.mu.Lock()
		r.pos[pid] = i + 1
		r.mu.Unlock()

		var execName string
		if op.Syscall == syscall.SysExec {
			execName = r.resolveExecName(arena, op.Args[0])
		}

		cx := trap.CurrentContext(arena)
		cx.X[regA7] = op.Syscall
		cx.X[regA0] = op.Args[0]
		cx.X[regA0+1] = op.Args[1]
		cx.X[regA0+2] = op.Args[2]

		preChildren := len(accessChildren(pcb))

		if err := trap.Handler(arena, trap.CauseUserEnvCall, 0, dispatch); err != nil {
			return err
		}

		r.attachNewChildren(pcb, prog, op, i+1, preChildren)

		// A syscall that neither exited nor suspended the task (the
		// common case — write, read, fork, exec, sbrk, get_time,
		// getpid, waitpid) leaves it installed as current, with
		// nothing left to give every other ready task its own turn.
		// Suspending it here is this runner's stand-in for the timer
		// interrupt a real hart would eventually take mid-tape.
		still := sched.CurrentTask()
		if still == nil || still.PID() != pid {
			return nil
		}

		if execName != "" {
			result := trap.CurrentContext(arena)
			if target, ok := r.byName[execName]; ok && int64(result.X[regA0]) >= 0 {
				r.mu.Lock()
				r.programs[pid] = target
				r.pos[pid] = 0
				r.mu.Unlock()
			}
		}

		sched.SuspendCurrentAndRunNext()
		return nil
	}
}

// attachNewChildren copies the parent's current program and tape
// position onto any child fork just added, matching the POSIX fork
// contract that both processes resume at the instruction right after
// the call — unless forkOp is a ForkThenExec, in which case the child
// is given a one-instruction tape that execs the named path on its
// very first turn instead, exactly the way Step's own Exec handling
// already switches a task onto a freshly resolved program.
func (r *Runner) attachNewChildren(pcb *proc.PCB, prog *Program, forkOp Op, resumeAt, before int) {
	children := accessChildren(pcb)
	if len(children) <= before {
		return
	}
	for _, child := range children[before:] {
		if forkOp.ForkExecPath != 0 {
			r.Attach(child.PID(), &Program{
				Name: prog.Name + ":fork-exec",
				Ops:  []Op{Exec(forkOp.ForkExecPath)},
			})
			continue
		}
		r.Attach(child.PID(), prog)
		r.mu.Lock()
		r.pos[child.PID()] = resumeAt
		r.mu.Unlock()
	}
}

func accessChildren(pcb *proc.PCB) []*proc.PCB {
	g := pcb.Access()
	defer g.Release()
	return g.Get().Children
}

// resolveExecName reads the NUL-terminated path argument of an Exec op
// back out of the caller's (pre-exec) address space, the same
// translation kernel/syscall's own sysExec performs before it tears
// that address space down.
func (r *Runner) resolveExecName(arena *pmm.Arena, pathPtr uint64) (name string) {
	defer func() {
		if recover() != nil {
			name = ""
		}
	}()
	return string(pagetable.TranslatedString(sched.CurrentUserToken(), arena, pathPtr))
}
