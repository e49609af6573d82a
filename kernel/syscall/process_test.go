package syscall

import (
	"errors"
	"testing"

	"github.com/ogurioguri/cradles-os/kernel/hal"
	"github.com/ogurioguri/cradles-os/kernel/proc"
	"github.com/ogurioguri/cradles-os/kernel/sched"
)

func TestSysGetTimeScalesTicksToMilliseconds(t *testing.T) {
	timer := hal.NewFakeTimer()
	hal.SetTimerDevice(timer)
	timer.Advance(12_500_000) // one second of ticks at config.ClockFreq

	_, err := runOnce(t, 0x1000, func(pcb *proc.PCB) error {
		if got := sysGetTime(); got != 1000 {
			t.Errorf("expected sysGetTime to report 1000ms, got %d", got)
		}
		return errStopSyscallTest
	})
	if !errors.Is(err, errStopSyscallTest) {
		t.Fatalf("unexpected RunTasks error: %v", err)
	}
}

func TestSysGetPIDReturnsCurrentTasksPID(t *testing.T) {
	var gotPID int64
	var wantPID int64
	_, err := runOnce(t, 0x1000, func(pcb *proc.PCB) error {
		wantPID = int64(pcb.PID())
		gotPID = sysGetPID()
		return errStopSyscallTest
	})
	if !errors.Is(err, errStopSyscallTest) {
		t.Fatalf("unexpected RunTasks error: %v", err)
	}
	if gotPID != wantPID {
		t.Fatalf("expected sysGetPID to return %d, got %d", wantPID, gotPID)
	}
}

func TestSysSbrkGrowsAndShrinksAndClampsAtOrigin(t *testing.T) {
	_, err := runOnce(t, 0x1000, func(pcb *proc.PCB) error {
		g := pcb.Access()
		origin := g.Get().HeapBottom
		g.Release()

		old := sysSbrk(4096)
		if uint64(old) != origin {
			t.Errorf("expected the first sbrk to return the origin %#x, got %#x", origin, old)
		}

		g = pcb.Access()
		brk := g.Get().ProgramBrk
		g.Release()
		if brk != origin+4096 {
			t.Errorf("expected ProgramBrk to grow by 4096, got %#x", brk)
		}

		if shrunk := sysSbrk(-4096); uint64(shrunk) != origin+4096 {
			t.Errorf("expected shrink to return the pre-shrink brk, got %#x", shrunk)
		}

		if got := sysSbrk(-4096); got != -1 {
			t.Errorf("expected shrinking below the origin to return -1, got %d", got)
		}
		return errStopSyscallTest
	})
	if !errors.Is(err, errStopSyscallTest) {
		t.Fatalf("unexpected RunTasks error: %v", err)
	}
}

func TestSysForkReturnsChildPIDToParentAndZeroToChild(t *testing.T) {
	_, err := runOnce(t, 0x1000, func(parent *proc.PCB) error {
		childPID := sysFork()
		if childPID == int64(parent.PID()) {
			t.Fatal("expected the forked child to have a distinct pid")
		}

		g := parent.Access()
		children := g.Get().Children
		g.Release()
		if len(children) != 1 || int64(children[0].PID()) != childPID {
			t.Fatalf("expected parent to have exactly the forked child listed")
		}

		g = children[0].Access()
		ppn := g.Get().TrapContextPPN
		g.Release()
		if got := int64(trapContextA0(arena, ppn)); got != 0 {
			t.Errorf("expected the child's a0 to be zeroed by fork, got %d", got)
		}
		return errStopSyscallTest
	})
	if !errors.Is(err, errStopSyscallTest) {
		t.Fatalf("unexpected RunTasks error: %v", err)
	}
}

func TestSysExecReplacesImageOnSuccessAndReturnsNegativeOneOnUnknownApp(t *testing.T) {
	RegisterApp("child", buildTestElfImage(0x2000))

	_, err := runOnce(t, 0x1000, func(pcb *proc.PCB) error {
		token := sched.CurrentUserToken()
		pathPtr := writeCString(t, token, pcb, 0x1000+80, "child")

		if got := sysExec(pathPtr); got != 0 {
			t.Fatalf("expected sysExec to succeed, got %d", got)
		}

		// sysExec replaced the current memory set; the unknown-app path
		// now has to live inside the new image's own mapped text.
		unknownPtr := writeCString(t, sched.CurrentUserToken(), pcb, 0x2000+80, "no-such-app")
		if got := sysExec(unknownPtr); got != -1 {
			t.Fatalf("expected sysExec of an unregistered app to return -1, got %d", got)
		}
		return errStopSyscallTest
	})
	if !errors.Is(err, errStopSyscallTest) {
		t.Fatalf("unexpected RunTasks error: %v", err)
	}
}

func TestSysWaitpidReapsZombieChildAndWritesStatus(t *testing.T) {
	_, err := runOnce(t, 0x1000, func(parent *proc.PCB) error {
		childPID := sysFork()
		statusPtr := uint64(0x1000 + 80)

		if got := sysWaitpid(int32(childPID), statusPtr); got != -2 {
			t.Fatalf("expected waitpid on a non-zombie child to return -2, got %d", got)
		}

		g := parent.Access()
		var child *proc.PCB
		for _, c := range g.Get().Children {
			if int64(c.PID()) == childPID {
				child = c
			}
		}
		g.Release()
		if child == nil {
			t.Fatal("expected to find the forked child among parent's Children")
		}

		cg := child.Access()
		cg.Get().Status = proc.Zombie
		cg.Get().ExitCode = 7
		cg.Release()

		token := sched.CurrentUserToken()
		if got := sysWaitpid(int32(childPID), statusPtr); got != childPID {
			t.Fatalf("expected waitpid to reap pid %d, got %d", childPID, got)
		}

		g = parent.Access()
		remaining := len(g.Get().Children)
		g.Release()
		if remaining != 0 {
			t.Fatalf("expected the reaped child to be removed from Children, got %d remaining", remaining)
		}

		gotStatus := readInt32(arena, token, statusPtr)
		if gotStatus != 7 {
			t.Fatalf("expected the exit status 7 to be written to the caller, got %d", gotStatus)
		}

		if got := sysWaitpid(-1, 0); got != -1 {
			t.Fatalf("expected waitpid with no children left to return -1, got %d", got)
		}
		return errStopSyscallTest
	})
	if !errors.Is(err, errStopSyscallTest) {
		t.Fatalf("unexpected RunTasks error: %v", err)
	}
}
