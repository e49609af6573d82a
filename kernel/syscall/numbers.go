// Package syscall implements the ten system calls user programs reach
// the kernel through: the dispatch table trap.Handler's Dispatcher
// callback is bound to, plus each call's semantics over kernel/sched,
// kernel/proc, and kernel/pagetable's user/kernel boundary helpers.
package syscall

// Syscall numbers, matching the RISC-V Linux ABI subset this kernel
// implements.
const (
	SysRead    = 63
	SysWrite   = 64
	SysExit    = 93
	SysYield   = 124
	SysGetTime = 169
	SysGetPID  = 172
	SysSbrk    = 214
	SysFork    = 220
	SysExec    = 221
	SysWaitpid = 260
)
