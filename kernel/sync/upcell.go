package sync

import "sync/atomic"

// UPCell wraps a value that is only ever accessed from a single logical
// thread of control at a time (the running task, an interrupt handler that
// runs to completion before anything else touches the cell, and so on).
// Unlike Spinlock it never blocks: a re-entrant access is a programming
// error and UPCell panics instead of deadlocking silently, the same
// contract a uniprocessor kernel gets from a borrow-checked RefCell.
//
// Go has no borrow checker, so the check is a runtime flag instead of a
// compile-time one; the failure mode (loud panic on accidental re-entrancy)
// is what the pattern is there to guarantee.
type UPCell[T any] struct {
	inner    T
	borrowed atomic.Bool
}

// NewUPCell wraps v in a new cell.
func NewUPCell[T any](v T) *UPCell[T] {
	return &UPCell[T]{inner: v}
}

// Access grants exclusive access to the wrapped value. The returned Guard
// must be released (via Release) before the cell can be accessed again;
// calling Access while a Guard is outstanding panics.
func (c *UPCell[T]) Access() *Guard[T] {
	if !c.borrowed.CompareAndSwap(false, true) {
		panic("UPCell: already borrowed")
	}
	return &Guard[T]{cell: c}
}

// Guard is the exclusive borrow returned by UPCell.Access.
type Guard[T any] struct {
	cell *UPCell[T]
}

// Get returns a pointer to the wrapped value for the lifetime of the
// guard.
func (g *Guard[T]) Get() *T {
	return &g.cell.inner
}

// Release ends the borrow, allowing a subsequent call to Access to
// succeed. Releasing a Guard twice panics, mirroring the single-owner
// discipline the cell exists to enforce.
func (g *Guard[T]) Release() {
	if !g.cell.borrowed.CompareAndSwap(true, false) {
		panic("UPCell: double release")
	}
}
