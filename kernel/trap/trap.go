package trap

import (
	"errors"
	"unsafe"

	"github.com/ogurioguri/cradles-os/kernel/config"
	"github.com/ogurioguri/cradles-os/kernel/hal"
	"github.com/ogurioguri/cradles-os/kernel/kfmt"
	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	"github.com/ogurioguri/cradles-os/kernel/sched"
)

// ErrTaskExited is returned by a Dispatcher when the syscall it just ran
// (sys_exit) tore down the current task's trap-context page. It tells
// Handler there is nothing left to write a return value into, without
// being treated as a shutdown request the way sched.ErrShutdown is.
var ErrTaskExited = errors.New("trap: current task exited during syscall dispatch")

// Cause mirrors the scause values trap_handler switches on. There is no
// real scause CSR in a hosted build, so whatever drives a task (the
// syscall tape interpreter, a fault injector in a test) names the cause
// explicitly instead of decoding it out of hardware state.
type Cause int

const (
	CauseUserEnvCall Cause = iota
	CauseStoreFault
	CauseStorePageFault
	CauseLoadFault
	CauseLoadPageFault
	CauseInstructionFault
	CauseInstructionPageFault
	CauseIllegalInstruction
	CauseSupervisorTimer
)

func (c Cause) String() string {
	switch c {
	case CauseUserEnvCall:
		return "UserEnvCall"
	case CauseStoreFault:
		return "StoreFault"
	case CauseStorePageFault:
		return "StorePageFault"
	case CauseLoadFault:
		return "LoadFault"
	case CauseLoadPageFault:
		return "LoadPageFault"
	case CauseInstructionFault:
		return "InstructionFault"
	case CauseInstructionPageFault:
		return "InstructionPageFault"
	case CauseIllegalInstruction:
		return "IllegalInstruction"
	case CauseSupervisorTimer:
		return "SupervisorTimer"
	default:
		return "Unknown"
	}
}

// isMemoryFault reports whether c is one of the memory-access faults
// that all share the same -2 exit-code treatment.
func (c Cause) isMemoryFault() bool {
	switch c {
	case CauseStoreFault, CauseStorePageFault, CauseLoadFault, CauseLoadPageFault,
		CauseInstructionFault, CauseInstructionPageFault:
		return true
	default:
		return false
	}
}

// Dispatcher decodes a7/a0..a2 into a syscall result. Handler takes one
// as a parameter, rather than importing kernel/syscall directly, so that
// package can depend on trap (to build and rewrite Context on exec)
// without the two packages importing each other. A non-nil error is
// either ErrTaskExited (sys_exit ran; skip the return-value writeback)
// or a scheduler shutdown request to propagate straight out of Handler.
type Dispatcher func(id uint64, args [3]uint64) (int64, error)

// stvecIsUserEntry tracks which of the two trap entry points is
// notionally armed, mirroring set_kernel_trap_entry/set_user_trap_entry
// toggling stvec. A trap arriving while the kernel entry is armed means
// the kernel itself faulted, which is always fatal.
var stvecIsUserEntry = true

// SetKernelTrapEntry arms the kernel-mode trap stub: any trap taken
// while it is armed is a kernel bug, not a user fault.
func SetKernelTrapEntry() { stvecIsUserEntry = false }

// SetUserTrapEntry re-arms the trampoline as the trap entry point before
// returning to user mode.
func SetUserTrapEntry() { stvecIsUserEntry = true }

// TrapFromKernel is what a trap taken while the kernel entry is armed
// dispatches to. It is always fatal: kernel-mode code in this design is
// never supposed to fault.
func TrapFromKernel() {
	kfmt.Panic("trap: trap from kernel mode")
}

// ContextAt returns the Context overlaying the physical page ppn. It is
// the kernel's own direct access path to a trap context — as opposed to
// a user pointer, which must go through a page-table translation — used
// both for the currently running task (CurrentContext) and, by
// kernel/syscall, for a PCB that isn't (yet) current, such as a fork
// child or a task being waited on.
func ContextAt(arena *pmm.Arena, ppn mem.PhysPageNum) *Context {
	page := arena.PageBytes(ppn)
	return (*Context)(unsafe.Pointer(&page[0]))
}

// CurrentContext returns the Context page for the task currently
// installed on the processor.
func CurrentContext(arena *pmm.Arena) *Context {
	return ContextAt(arena, sched.CurrentTrapContextPPN())
}

// Handler is the trap dispatcher: it arms the kernel trap entry point,
// decodes cause, and either services a syscall via dispatch or hands the
// fault off to the scheduler. It returns whatever ExitCurrentAndRunNext
// returns (nil, or sched.ErrShutdown/ErrShutdownFailure when the exiting
// task was the idle process), so a caller threading it into RunTasks's
// step callback can propagate shutdown the same way a syscall exit does.
func Handler(arena *pmm.Arena, cause Cause, stval uint64, dispatch Dispatcher) error {
	SetKernelTrapEntry()

	switch {
	case cause == CauseUserEnvCall:
		cx := CurrentContext(arena)
		cx.AdvancePastECALL()
		id, args := cx.SyscallArgs()

		// Captured before dispatch runs: a syscall that suspends the
		// task (sys_yield, a blocked sys_read never does since it
		// spins in place) clears it from the processor without
		// touching its trap-context page, so the return value still
		// needs to land here even though the task is no longer
		// "current" by the time dispatch returns.
		preDispatchCx := cx

		result, err := dispatch(id, args)
		switch {
		case errors.Is(err, ErrTaskExited):
			return nil
		case err != nil:
			return err
		}

		if sched.CurrentTask() == nil {
			preDispatchCx.SetReturnValue(result)
			return nil
		}

		// exec may have replaced the current task's memory set (and
		// therefore its trap-context page) while dispatch ran, so the
		// context written to here must be re-fetched rather than reused.
		CurrentContext(arena).SetReturnValue(result)
		return nil

	case cause.isMemoryFault():
		kfmt.Printf("[trap] %s at sepc=%#x, stval=%#x: killing task with code -2\n",
			cause, CurrentContext(arena).Sepc, stval)
		return sched.ExitCurrentAndRunNext(-2)

	case cause == CauseIllegalInstruction:
		dumpIllegalInstruction(arena, stval)
		return sched.ExitCurrentAndRunNext(-3)

	case cause == CauseSupervisorTimer:
		SetNextTrigger()
		sched.SuspendCurrentAndRunNext()
		return nil

	default:
		kfmt.Panic("trap: unhandled cause " + cause.String())
		return nil
	}
}

// Return is trap_return: it re-arms the trampoline as the trap entry
// point (undoing Handler's SetKernelTrapEntry) and hands control back to
// user mode. There is no __restore to jump to in a hosted build — the
// actual resumption of user-mode execution is the caller's job (the
// syscall-tape interpreter driving the now-current task) — so this
// function's only real effect is the stvec bookkeeping every other trap
// depends on.
func Return() {
	SetUserTrapEntry()
}

// ReturnAddr is the kernel virtual address recorded as a fresh task's
// TaskContext.RA: the trampoline-relative address __switch would jump
// to on this task's first run, computed the way trap_return computes
// restore_va (relative to the trampoline, so it is identical across
// every address space's SATP). GotoTrapReturn in kernel/proc never
// imports this package; callers building a PCB pass this value in.
func ReturnAddr() uint64 {
	return config.Trampoline
}

// EnableTimerInterrupt is the sie.STIE-setting half of timer setup. No
// real sie register exists in a hosted build; it exists so boot code and
// tests can express "timer interrupts are now armed" the way the
// original's boot sequence does, and as the natural place a future
// interrupt-controller binding would hook into.
func EnableTimerInterrupt() {}

// SetNextTrigger programs the next timer interrupt roughly 10ms out,
// matching CLOCK_FREQ/100.
func SetNextTrigger() {
	hal.SetNextTrigger(hal.NowTicks() + config.ClockFreq/100)
}
