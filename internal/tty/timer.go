package tty

import (
	"sync/atomic"
	"time"

	"github.com/ogurioguri/cradles-os/kernel/config"
)

// Timer backs kernel/hal.Timer with the host's wall clock scaled to the
// board's configured tick frequency, standing in for the CLINT's mtime
// register. There is no interrupt controller to actually deliver a
// timer interrupt in a hosted build; Due reports whether the programmed
// trigger has passed so a caller polling it can synthesize the trap
// itself.
type Timer struct {
	start   time.Time
	trigger atomic.Uint64
}

// NewTimer starts the tick counter at zero.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NowTicks returns elapsed wall-clock time since NewTimer, scaled to
// config.ClockFreq ticks per second.
func (t *Timer) NowTicks() uint64 {
	elapsed := time.Since(t.start)
	secs, rem := uint64(elapsed/time.Second), uint64(elapsed%time.Second)
	return secs*config.ClockFreq + rem*config.ClockFreq/uint64(time.Second)
}

// SetTimer programs the next trigger tick.
func (t *Timer) SetTimer(ticks uint64) {
	t.trigger.Store(ticks)
}

// Due reports whether NowTicks has reached the last programmed trigger.
func (t *Timer) Due() bool {
	return t.NowTicks() >= t.trigger.Load()
}
