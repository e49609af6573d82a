package syscall

import (
	"github.com/ogurioguri/cradles-os/kernel/hal"
	"github.com/ogurioguri/cradles-os/kernel/pagetable"
	"github.com/ogurioguri/cradles-os/kernel/sched"
)

// sysWrite copies len bytes from the user buffer at buf through the
// console, one translated page-sized chunk at a time. Only fd=1 is
// supported; anything else panics, matching the teaching kernel's
// "fatal if the contract is violated" posture for unsupported fds.
func sysWrite(fd uint64, buf uint64, length uint64) int64 {
	if fd != 1 {
		panic("syscall: write to unsupported fd")
	}
	token := sched.CurrentUserToken()
	for _, chunk := range pagetable.TranslatedByteBuffers(token, arena, buf, int(length)) {
		for _, b := range chunk {
			hal.ConsolePut(b)
		}
	}
	return int64(length)
}

// sysRead polls the console for a single byte and writes it to the user
// buffer. Only fd=0 and len=1 reads of the console are supported,
// matching the spec's "fd=0 only" contract.
//
// The spec calls for yielding to the scheduler between polls, the way
// the original's sys_read calls suspend_current_and_run_next in a loop:
// __switch there really does transfer the hart to a different task's
// kernel stack and, later, really does resume this loop where it left
// off. In this kernel's synchronous RunTasks/Switch model (see
// kernel/sched/switch.go) a "suspended" task's only continuation is the
// ordinary Go call stack still sitting here — calling
// SuspendCurrentAndRunNext mid-loop would clear the processor's current
// task out from under this very call without anything ever resuming it.
// So this spins directly on the console instead, the same honest
// simplification Switch itself documents.
func sysRead(fd uint64, buf uint64, length uint64) int64 {
	if fd != 0 {
		panic("syscall: read from unsupported fd")
	}
	if length == 0 {
		return 0
	}

	var b byte
	for {
		got, ok := hal.ConsoleGet()
		if ok {
			b = got
			break
		}
	}

	token := sched.CurrentUserToken()
	chunks := pagetable.TranslatedByteBuffers(token, arena, buf, 1)
	chunks[0][0] = b
	return 1
}
