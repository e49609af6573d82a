// Package tty backs kernel/hal's Console and Timer contracts with a
// real host terminal, the way a UART and the CLINT would on actual
// RISC-V hardware: golang.org/x/term puts the controlling tty into raw
// mode so keystrokes arrive unbuffered and unechoed, and golang.org/x/sys/unix
// sets the VMIN/VTIME knobs so each terminal read returns as soon as one
// byte is available. Those reads still block; kernel/hal.Console.ConsoleGet
// never blocks because it only polls a channel a background goroutine fills.
package tty

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console adapts a real terminal to kernel/hal.Console. Bytes typed at
// the terminal are read off a background goroutine into a small
// buffered channel so ConsoleGet can poll it without blocking, which is
// what kernel/syscall's fd=0 read spins on.
type Console struct {
	fd    int
	state *term.State

	out *os.File
	in  chan byte
}

// New puts in into raw, byte-at-a-time mode and returns a Console backed
// by it and out. Callers must call Restore before the process exits to
// hand the terminal back in its original state.
func New(in, out *os.File) (*Console, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("tty: fd %d is not a terminal", fd)
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("tty: MakeRaw: %w", err)
	}

	if err := setNonblockingReads(fd); err != nil {
		term.Restore(fd, state)
		return nil, fmt.Errorf("tty: setNonblockingReads: %w", err)
	}

	c := &Console{fd: fd, state: state, out: out, in: make(chan byte, 256)}
	go c.readLoop(in)
	return c, nil
}

// readLoop copies raw bytes from the terminal into c.in until the read
// side errors out (typically because Restore closed the terminal back
// to cooked mode out from under it).
func (c *Console) readLoop(in *os.File) {
	r := bufio.NewReader(in)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		select {
		case c.in <- b:
		default: // the kernel hasn't drained fast enough; drop it.
		}
	}
}

// ConsolePut writes one byte straight to the terminal.
func (c *Console) ConsolePut(b byte) {
	c.out.Write([]byte{b})
}

// ConsoleGet returns the oldest buffered keystroke, or ok=false if none
// has arrived since the last call.
func (c *Console) ConsoleGet() (b byte, ok bool) {
	select {
	case b = <-c.in:
		return b, true
	default:
		return 0, false
	}
}

// Restore undoes New's raw-mode switch, returning the terminal to
// whatever line discipline it had before.
func (c *Console) Restore() error {
	return term.Restore(c.fd, c.state)
}

// setNonblockingReads is called once by New through unix directly
// (rather than through x/term, which has no VMIN/VTIME knob of its
// own): VMIN=1, VTIME=0 makes each read wait for, and return with, a
// single byte instead of buffering a full line.
func setNonblockingReads(fd int) error {
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, ioctlSetTermios, termios)
}
