package kfmt

import "github.com/ogurioguri/cradles-os/kernel"

// haltFn is invoked once Panic has reported its error. Tests substitute it
// so a call to Panic doesn't tear down the test binary.
var haltFn = defaultHalt

func defaultHalt() {
	panic("kfmt: system halted")
}

// SetHaltFn overrides the function invoked after Panic reports its error,
// returning the previous hook so callers can restore it.
func SetHaltFn(fn func()) (prev func()) {
	prev, haltFn = haltFn, fn
	return prev
}

var errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}

// Panic reports e to the output sink and halts the system. Calls to Panic
// are not expected to return.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	default:
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	haltFn()
}
