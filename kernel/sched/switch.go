// Package sched implements the FIFO ready queue and the two
// context-switch entry points (run_tasks, schedule) that move a hart
// between the idle context and a task's saved context.
package sched

import "github.com/ogurioguri/cradles-os/kernel/proc"

// Switch is this kernel's stand-in for the assembly __switch primitive.
// The real __switch saves the executing ra/sp/s0..s11 into *save and
// resumes execution at the ra/sp recorded in *load — an asymmetric
// coroutine transfer that only makes sense when two distinct physical
// stacks exist to jump between.
//
// Hosted in a single Go process there is no second stack: a "suspended"
// task's point of execution is just the ordinary Go call stack of
// whatever invoked RunTasks's step callback, still live and waiting for
// that callback to return. Nothing in this kernel ever reads a
// TaskContext's fields back to redirect control flow — scheduling
// decisions are made by RunTasks choosing what to call next,
// not by jumping through saved registers. Switch therefore exists to
// give callers the same save/load call shape the original has (so
// Suspend/Exit/RunTasks read the way the original's task.rs does) and to
// make the data movement itself — which is what this kernel's unit
// tests actually observe — exact: a swap leaves both contexts holding
// what the other held, and two swaps round-trip back to the start.
func Switch(save, load *proc.TaskContext) {
	*save, *load = *load, *save
}
