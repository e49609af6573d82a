package proc

// TaskContext is the kernel-side register snapshot `__switch` saves and
// restores: the return address, stack pointer, and callee-saved
// registers s0..s11. Caller-saved registers are never part of it — the
// Go code that calls __switch is expected to have nothing live in them
// across the call, matching the assembly's actual contract.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64
}

// ZeroTaskContext returns an empty context, the counterpart of the
// throwaway "_unused" context the original kernel passes to
// run_first_task and exit_current_and_run_next.
func ZeroTaskContext() TaskContext {
	return TaskContext{}
}

// GotoTrapReturn builds the context a freshly created task switches into
// for the first time: ra points at trap_return's kernel virtual address
// (reached through the trampoline like every other return to user mode)
// and sp is the top of the task's own kernel stack.
func GotoTrapReturn(kernelStackTop, trapReturnAddr uint64) TaskContext {
	return TaskContext{RA: trapReturnAddr, SP: kernelStackTop}
}
