// Command rvdump disassembles the loadable, executable segments of one
// of this kernel's scripted-tape ELF images, the same instruction
// decoder kernel/trap/fault.go reaches for when it logs a user fault.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/arch/riscv64/riscv64asm"

	"github.com/ogurioguri/cradles-os/kernel/elf"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: rvdump <elf-file>\n")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "rvdump: %s\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	f, err := elf.Parse(data)
	if err != nil {
		return err
	}

	fmt.Printf("entry: %#x\n", f.Entry)
	for _, ph := range f.Programs {
		if ph.Type != elf.PTLoad || ph.Flags&elf.PFExec == 0 {
			continue
		}
		dumpSegment(ph, data)
	}
	return nil
}

// dumpSegment walks seg in 4-byte windows, printing each decoded
// instruction at its virtual address. A window that fails to decode
// (commonly a 16-bit compressed instruction padded with the next
// instruction's leading byte) is reported rather than skipped, the
// same "log and move on" posture fault.go takes toward undecodable
// bytes.
func dumpSegment(ph elf.ProgramHeader, image []byte) {
	code := ph.Data(image)
	for off := 0; off+4 <= len(code); off += 4 {
		va := ph.VAddr + uint64(off)
		window := code[off : off+4]
		if inst, err := riscv64asm.Decode(window); err == nil {
			fmt.Printf("%#08x:  %-8x %s\n", va, window, inst.String())
		} else {
			fmt.Printf("%#08x:  %-8x (undecodable: %s)\n", va, window, err)
		}
	}
}
