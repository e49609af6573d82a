package hal

import "sync"

// FakeConsole is an in-memory stand-in for a UART: output accumulates in
// a buffer tests can inspect, and input is whatever bytes the test
// queues ahead of time. The ready-flag-under-a-mutex shape mirrors how a
// real status register gates access to its data register.
type FakeConsole struct {
	mu     sync.Mutex
	output []byte
	input  []byte
}

// NewFakeConsole returns a console with no queued input.
func NewFakeConsole() *FakeConsole { return &FakeConsole{} }

// ConsolePut appends b to the output buffer.
func (c *FakeConsole) ConsolePut(b byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = append(c.output, b)
}

// ConsoleGet pops the next queued input byte, or reports ok=false if the
// input queue is empty — the non-blocking poll a real status register's
// ready bit provides.
func (c *FakeConsole) ConsoleGet() (b byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.input) == 0 {
		return 0, false
	}
	b, c.input = c.input[0], c.input[1:]
	return b, true
}

// QueueInput appends bytes to the input queue a later ConsoleGet will
// drain from, front first.
func (c *FakeConsole) QueueInput(bytes ...byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = append(c.input, bytes...)
}

// Output returns a copy of everything written so far.
func (c *FakeConsole) Output() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.output))
	copy(out, c.output)
	return out
}

// FakeTimer is a manually advanced tick source: tests move Ticks forward
// themselves instead of waiting on wall-clock time.
type FakeTimer struct {
	mu      sync.Mutex
	ticks   uint64
	trigger uint64
}

// NewFakeTimer returns a timer starting at tick 0 with no trigger armed.
func NewFakeTimer() *FakeTimer { return &FakeTimer{} }

// NowTicks returns the current simulated tick count.
func (t *FakeTimer) NowTicks() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// SetTimer records the next trigger tick.
func (t *FakeTimer) SetTimer(ticks uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trigger = ticks
}

// Trigger returns the most recently armed trigger tick.
func (t *FakeTimer) Trigger() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trigger
}

// Advance moves the simulated clock forward by delta ticks.
func (t *FakeTimer) Advance(delta uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks += delta
}
