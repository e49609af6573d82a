// Package trap implements the supervisor trap entry/exit contract: the
// per-process TrapContext layout, the dispatcher invoked on a trap
// (trap_handler in the original), and trap_return's handoff back to user
// mode. The trampoline assembly itself (__alltraps/__restore) is out of
// scope; this package defines the memory layout and addresses that
// assembly is required to honor and supplies everything on the Go side
// of that contract.
package trap

import (
	"github.com/ogurioguri/cradles-os/kernel/kfmt"
)

// Context is the fixed register-snapshot layout the trampoline reads
// and writes on every user/kernel transition. It lives in a single
// framed page mapped at config.TrapContext in every user memory set.
//
// Field order matters: __alltraps/__restore would index into this
// struct by fixed byte offset, so X, Sstatus, and Sepc must stay first
// and in this order for any real assembly written against this layout.
type Context struct {
	// X holds the 32 RISC-V general-purpose registers, x0 (always
	// zero) through x31. The trampoline saves all of them except x0
	// and restores all of them except x0 and x2 (sp, handled
	// separately by the stack-switch dance).
	X [32]uint64

	// Sstatus is the supervisor status CSR snapshot at trap time; bit
	// SPP (previous privilege) tells trap_return which mode sret drops
	// into.
	Sstatus uint64

	// Sepc is the supervisor exception program counter: the user
	// instruction to resume at (or just after, for a syscall).
	Sepc uint64

	// KernelSatp is the token of the kernel's memory set, loaded into
	// satp by __alltraps on the way in.
	KernelSatp uint64

	// KernelSP is the top of this process's kernel stack, loaded into
	// sp by __alltraps on the way in.
	KernelSP uint64

	// TrapHandler is the kernel virtual address of Handler (or rather,
	// of the function __alltraps jumps to after switching to kernel
	// space), so the trampoline never has to hardcode it.
	TrapHandler uint64
}

// Register indices into Context.X for the registers this package reads
// or writes directly, named the way the RISC-V calling convention names
// them rather than by raw index.
const (
	regSP  = 2  // x2: stack pointer
	regA0  = 10 // x10: syscall arg 0 / return value
	regA1  = 11 // x11: syscall arg 1
	regA2  = 12 // x12: syscall arg 2
	regA7  = 17 // x17: syscall number
)

// NewContext builds the initial Context for a process about to run for
// the first time (or re-run after exec): user pc at entry, user sp at
// sp, and the kernel-side fields trap_return needs to get back into the
// kernel on the next trap.
func NewContext(entry, sp, kernelSatp, kernelSP, trapHandler uint64) Context {
	cx := Context{
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSP:    kernelSP,
		TrapHandler: trapHandler,
	}
	cx.X[regSP] = sp
	return cx
}

// SetReturnValue stores a syscall's result in a0, the register the
// RISC-V calling convention (and this kernel's syscall ABI) uses for
// return values.
func (cx *Context) SetReturnValue(v int64) { cx.X[regA0] = uint64(v) }

// SyscallArgs returns the syscall number (a7) and its first three
// argument registers (a0..a2), matching the ABI spelled out for sys_call.
func (cx *Context) SyscallArgs() (id uint64, args [3]uint64) {
	return cx.X[regA7], [3]uint64{cx.X[regA0], cx.X[regA1], cx.X[regA2]}
}

// AdvancePastECALL moves sepc past the 4-byte ecall instruction that
// trapped, so trap_return resumes at the instruction after it rather
// than re-executing the same ecall forever.
func (cx *Context) AdvancePastECALL() { cx.Sepc += 4 }

// Dump prints a register snapshot to the active console, in the
// register-dump-on-fault style every fault exit uses before tearing the
// task down.
func (cx *Context) Dump() {
	kfmt.Printf("sepc = %16x sstatus = %16x\n", cx.Sepc, cx.Sstatus)
	for i := 0; i < 32; i += 4 {
		kfmt.Printf("x%-2d = %16x x%-2d = %16x x%-2d = %16x x%-2d = %16x\n",
			i, cx.X[i], i+1, cx.X[i+1], i+2, cx.X[i+2], i+3, cx.X[i+3])
	}
}
