// Package harness drives complete, named end-to-end scenarios through
// the real kernel plumbing — ELF image, page tables, trap dispatch,
// syscalls, scheduler — the integration layer above the package-level
// unit tests, grounded on the same "drive a simulated console and
// assert on the transcript" shape smoynes-elsie's terminal test tools
// take, adapted here to a line-oriented tape assembler instead of an
// interactive keyboard/display loop.
package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ogurioguri/cradles-os/internal/userprog"
)

// scratchCap is the fixed Scratch buffer size every assembled program
// gets. statusSlot is a reserved word at its tail for waitpid's status
// output, leaving the rest for assembled string/path literals.
const (
	scratchCap = 4096
	statusSlot = scratchCap - 8
)

// Assemble compiles a tape's source into a runnable Program whose string
// and path literals live in its own Scratch buffer, addressed relative
// to entry exactly the way userprog.Build maps it.
//
// Tape grammar, one instruction per line (blank lines and lines starting
// with # are ignored):
//
//	write <fd> "<literal>"   assemble <literal> into scratch, then write it
//	exit <code>
//	yield
//	gettime
//	getpid
//	sbrk <delta>
//	fork
//	forkexec <program-name>  fork, child execs the named program
//	exec <program-name>
//	waitpid <pid>            status written to this program's own status slot
//	waitpoll <pid> <tries>   waitpid repeated <tries> times; a tape
//	                         cannot loop on a syscall's return value, so
//	                         a fixed-size poll stands in for the spin
//	                         loop sysWaitpid's caller would normally run
//	                         until a child actually becomes a zombie
func Assemble(entry uint64, name, tape string) (*userprog.Program, error) {
	p := &userprog.Program{Name: name, Scratch: make([]byte, scratchCap)}
	cursor := 0

	appendLiteral := func(lit string) (uint64, error) {
		b := append([]byte(lit), 0)
		if cursor+len(b) > statusSlot {
			return 0, fmt.Errorf("harness: program %q: scratch overflow assembling %q", name, lit)
		}
		copy(p.Scratch[cursor:], b)
		ptr := entry + uint64(cursor)
		cursor += len(b)
		return ptr, nil
	}

	for lineNo, raw := range strings.Split(tape, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tok, err := tokenize(line)
		if err != nil {
			return nil, fmt.Errorf("harness: program %q line %d: %w", name, lineNo+1, err)
		}

		switch tok[0] {
		case "write":
			if len(tok) != 3 {
				return nil, fmt.Errorf("harness: program %q line %d: write wants <fd> \"<literal>\"", name, lineNo+1)
			}
			fd, err := strconv.ParseUint(tok[1], 0, 64)
			if err != nil {
				return nil, err
			}
			ptr, err := appendLiteral(tok[2])
			if err != nil {
				return nil, err
			}
			p.Ops = append(p.Ops, userprog.Write(fd, ptr, uint64(len(tok[2]))))
		case "exit":
			code, err := strconv.ParseInt(tok[1], 0, 32)
			if err != nil {
				return nil, err
			}
			p.Ops = append(p.Ops, userprog.Exit(int32(code)))
		case "yield":
			p.Ops = append(p.Ops, userprog.Yield())
		case "gettime":
			p.Ops = append(p.Ops, userprog.GetTime())
		case "getpid":
			p.Ops = append(p.Ops, userprog.GetPID())
		case "sbrk":
			delta, err := strconv.ParseInt(tok[1], 0, 32)
			if err != nil {
				return nil, err
			}
			p.Ops = append(p.Ops, userprog.Sbrk(int32(delta)))
		case "fork":
			p.Ops = append(p.Ops, userprog.Fork())
		case "forkexec":
			ptr, err := appendLiteral(tok[1])
			if err != nil {
				return nil, err
			}
			p.Ops = append(p.Ops, userprog.ForkThenExec(ptr))
		case "exec":
			ptr, err := appendLiteral(tok[1])
			if err != nil {
				return nil, err
			}
			p.Ops = append(p.Ops, userprog.Exec(ptr))
		case "waitpid":
			pid, err := strconv.ParseInt(tok[1], 0, 32)
			if err != nil {
				return nil, err
			}
			p.Ops = append(p.Ops, userprog.Waitpid(int32(pid), entry+statusSlot))
		case "waitpoll":
			if len(tok) != 3 {
				return nil, fmt.Errorf("harness: program %q line %d: waitpoll wants <pid> <tries>", name, lineNo+1)
			}
			pid, err := strconv.ParseInt(tok[1], 0, 32)
			if err != nil {
				return nil, err
			}
			tries, err := strconv.Atoi(tok[2])
			if err != nil {
				return nil, err
			}
			for i := 0; i < tries; i++ {
				p.Ops = append(p.Ops, userprog.Waitpid(int32(pid), entry+statusSlot))
			}
		default:
			return nil, fmt.Errorf("harness: program %q line %d: unknown instruction %q", name, lineNo+1, tok[0])
		}
	}

	return p, nil
}

// tokenize splits a line into space-separated tokens, treating a
// "quoted string" as a single token with its quotes stripped.
func tokenize(line string) ([]string, error) {
	var out []string
	for len(line) > 0 {
		line = strings.TrimLeft(line, " \t")
		if line == "" {
			break
		}
		if line[0] == '"' {
			end := strings.IndexByte(line[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated string literal")
			}
			out = append(out, unescape(line[1:1+end]))
			line = line[1+end+1:]
			continue
		}
		end := strings.IndexAny(line, " \t")
		if end < 0 {
			out = append(out, line)
			break
		}
		out = append(out, line[:end])
		line = line[end:]
	}
	return out, nil
}

// unescape expands the handful of backslash escapes a tape's quoted
// string literals need (\n, \\, \").
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
