// Package hal names the four free functions the core treats as external
// collaborators: a byte-oriented console and a tick-counting timer. Real
// boards back these with UART MMIO and the CLINT; this package only
// defines the contract and a process-wide binding for it, the same way
// spec.md's "out of scope" list leaves the device drivers themselves to
// someone else.
package hal

// Console is the serial device the console syscalls use. ConsoleGet
// must never block: a fd=0 read polls it in a loop until a byte
// arrives, because a real UART has no byte to give most of the time.
// That loop spins in place; it does not yield the CPU between polls.
type Console interface {
	// ConsolePut writes one byte to the device.
	ConsolePut(b byte)

	// ConsoleGet returns the next buffered byte and true, or ok=false
	// if nothing has arrived yet.
	ConsoleGet() (b byte, ok bool)
}

// Timer is the CLINT-equivalent tick source: a monotonically increasing
// counter plus a single next-interrupt compare register.
type Timer interface {
	// NowTicks returns the current value of the `time` CSR equivalent.
	NowTicks() uint64

	// SetTimer programs the next timer-interrupt trigger at the given
	// tick count.
	SetTimer(ticks uint64)
}

var (
	console Console
	timer   Timer
)

// SetConsole installs the process-wide console device. Boot code calls
// this once before the scheduler runs; tests call it with a fake to
// assert on syscall behavior without a real UART.
func SetConsole(c Console) { console = c }

// SetTimerDevice installs the process-wide timer device.
func SetTimerDevice(t Timer) { timer = t }

// ConsolePut writes one byte to the installed console. It panics if no
// console has been installed, the same "fatal if the contract is
// violated" posture the rest of this kernel's globals take.
func ConsolePut(b byte) {
	if console == nil {
		panic("hal: ConsolePut called before SetConsole")
	}
	console.ConsolePut(b)
}

// ConsoleGet reads one byte from the installed console, if one is ready.
func ConsoleGet() (b byte, ok bool) {
	if console == nil {
		panic("hal: ConsoleGet called before SetConsole")
	}
	return console.ConsoleGet()
}

// NowTicks returns the installed timer's current tick count.
func NowTicks() uint64 {
	if timer == nil {
		panic("hal: NowTicks called before SetTimerDevice")
	}
	return timer.NowTicks()
}

// SetNextTrigger programs the next timer interrupt at ticks.
func SetNextTrigger(ticks uint64) {
	if timer == nil {
		panic("hal: SetNextTrigger called before SetTimerDevice")
	}
	timer.SetTimer(ticks)
}
