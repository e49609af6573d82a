package sched

import "testing"

func TestManagerFIFOOrdering(t *testing.T) {
	resetSchedulerState()
	arena := newSchedTestArena(t)
	kernelMS := newSchedTestKernelMS(arena)

	a := newTestPCB(t, arena, kernelMS, 0x1000)
	b := newTestPCB(t, arena, kernelMS, 0x2000)
	c := newTestPCB(t, arena, kernelMS, 0x3000)

	AddTask(a)
	AddTask(b)
	AddTask(c)

	if got := FetchTask(); got != a {
		t.Fatal("expected the first fetch to return the first-added task")
	}
	if got := FetchTask(); got != b {
		t.Fatal("expected the second fetch to return the second-added task")
	}
	if got := FetchTask(); got != c {
		t.Fatal("expected the third fetch to return the third-added task")
	}
	if got := FetchTask(); got != nil {
		t.Fatal("expected the queue to be empty")
	}
}
