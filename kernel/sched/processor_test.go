package sched

import "testing"

func TestTakeCurrentTaskClearsProcessor(t *testing.T) {
	resetSchedulerState()
	arena := newSchedTestArena(t)
	kernelMS := newSchedTestKernelMS(arena)
	a := newTestPCB(t, arena, kernelMS, 0x1000)

	p := globalProcessor.Access()
	p.Get().current = a
	p.Release()

	if CurrentTask() != a {
		t.Fatal("expected CurrentTask to return the task set on the processor")
	}
	if TakeCurrentTask() != a {
		t.Fatal("expected TakeCurrentTask to return the task")
	}
	if CurrentTask() != nil {
		t.Fatal("expected no current task after TakeCurrentTask")
	}
}

func TestCurrentUserTokenPanicsWithoutCurrentTask(t *testing.T) {
	resetSchedulerState()
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic with no current task")
		}
	}()
	CurrentUserToken()
}
