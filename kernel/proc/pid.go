// Package proc implements the process control block: PID allocation,
// per-process kernel stacks, and the mutable process state a scheduler
// and syscall dispatcher operate on.
package proc

import (
	"fmt"

	ksync "github.com/ogurioguri/cradles-os/kernel/sync"
)

// PID is a process identifier.
type PID int

// pidAllocator hands out PIDs starting from 0, recycling freed ones, the
// same bump-with-free-list shape as the frame allocator.
type pidAllocator struct {
	current  PID
	recycled []PID
}

func (a *pidAllocator) alloc() PID {
	if n := len(a.recycled); n > 0 {
		pid := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return pid
	}
	pid := a.current
	a.current++
	return pid
}

func (a *pidAllocator) dealloc(pid PID) {
	if pid >= a.current {
		panic(fmt.Sprintf("proc: pid %d has not been allocated", pid))
	}
	for _, r := range a.recycled {
		if r == pid {
			panic(fmt.Sprintf("proc: pid %d has already been deallocated", pid))
		}
	}
	a.recycled = append(a.recycled, pid)
}

var globalPIDAllocator = ksync.NewUPCell(pidAllocator{})

// PIDHandle binds a PID's lifetime: it must be released exactly once,
// which returns the PID to the allocator. Go has no destructor to do
// this implicitly, so every owner of a PIDHandle (the PCB, here) must
// call Release itself — on reap (waitpid), never on mere exit.
type PIDHandle struct {
	pid      PID
	released bool
}

// AllocPID allocates a fresh PID and wraps it in a handle.
func AllocPID() PIDHandle {
	g := globalPIDAllocator.Access()
	defer g.Release()
	return PIDHandle{pid: g.Get().alloc()}
}

// PID returns the wrapped process identifier.
func (h PIDHandle) PID() PID { return h.pid }

// Release returns the PID to the allocator. Releasing twice panics.
func (h *PIDHandle) Release() {
	if h.released {
		panic("proc: PIDHandle released twice")
	}
	h.released = true
	g := globalPIDAllocator.Access()
	defer g.Release()
	g.Get().dealloc(h.pid)
}
