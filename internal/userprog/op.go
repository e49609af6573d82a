// Package userprog stands in for the user-mode instruction stream this
// kernel has no assembler or compiler to produce (per spec, decoding
// and executing real RISC-V instructions is out of scope). A Program is
// a scripted sequence of syscalls, the only user-mode behavior the
// kernel subsystem under test actually cares about; Build embeds it
// behind a real, spec-conformant ELF64 image so segment mapping stays
// byte-accurate, and Runner plays the part of the missing instruction
// decoder, driving one Op per trap the way a real ecall would.
package userprog

import "github.com/ogurioguri/cradles-os/kernel/syscall"

// Op is one scripted syscall: the tape's only instruction. Executing it
// is equivalent to a user program loading a7/a0/a1/a2 and issuing ecall.
type Op struct {
	Syscall uint64
	Args    [3]uint64

	// ForkExecPath is nonzero for a fork() whose child should
	// immediately exec the NUL-terminated program name stored at that
	// address within the caller's own memory (inherited by the child
	// through the real address-space fork). A tape has no way to
	// branch on a syscall's return value the way real machine code
	// checks fork()'s result against zero, so the classic
	// "fork-then-child-execs" shape is expressed directly on the Op
	// that forks rather than as a conditional later in the tape. Leave
	// it zero for a plain fork() where both processes keep running the
	// same tape from the instruction after the call.
	ForkExecPath uint64
}

// Write scripts a write(fd, buf, len) call.
func Write(fd, buf, length uint64) Op {
	return Op{Syscall: syscall.SysWrite, Args: [3]uint64{fd, buf, length}}
}

// Read scripts a read(fd, buf, len) call.
func Read(fd, buf, length uint64) Op {
	return Op{Syscall: syscall.SysRead, Args: [3]uint64{fd, buf, length}}
}

// Exit scripts an exit(code) call.
func Exit(code int32) Op {
	return Op{Syscall: syscall.SysExit, Args: [3]uint64{uint64(uint32(code))}}
}

// Yield scripts a yield() call.
func Yield() Op { return Op{Syscall: syscall.SysYield} }

// GetTime scripts a get_time() call.
func GetTime() Op { return Op{Syscall: syscall.SysGetTime} }

// GetPID scripts a getpid() call.
func GetPID() Op { return Op{Syscall: syscall.SysGetPID} }

// Sbrk scripts an sbrk(delta) call.
func Sbrk(delta int32) Op {
	return Op{Syscall: syscall.SysSbrk, Args: [3]uint64{uint64(uint32(delta))}}
}

// Fork scripts a fork() call where both parent and child keep running
// the same tape.
func Fork() Op { return Op{Syscall: syscall.SysFork} }

// ForkThenExec scripts a fork() call whose child immediately execs the
// NUL-terminated program name stored at pathPtr in the caller's own
// memory, the scripted equivalent of `if (fork() == 0) exec(path)`.
func ForkThenExec(pathPtr uint64) Op {
	return Op{Syscall: syscall.SysFork, ForkExecPath: pathPtr}
}

// Exec scripts an exec(pathPtr) call. pathPtr must point at a
// NUL-terminated name registered with kernel/syscall.RegisterApp.
func Exec(pathPtr uint64) Op {
	return Op{Syscall: syscall.SysExec, Args: [3]uint64{pathPtr}}
}

// Waitpid scripts a waitpid(pid, statusPtr) call.
func Waitpid(pid int32, statusPtr uint64) Op {
	return Op{Syscall: syscall.SysWaitpid, Args: [3]uint64{uint64(uint32(pid)), statusPtr}}
}
