package trap

import (
	"golang.org/x/arch/riscv64/riscv64asm"

	"github.com/ogurioguri/cradles-os/kernel/kfmt"
	"github.com/ogurioguri/cradles-os/kernel/pagetable"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
	"github.com/ogurioguri/cradles-os/kernel/sched"
)

// dumpIllegalInstruction logs the faulting instruction's bytes,
// disassembled where possible, plus a register snapshot, before the
// caller exits the task. Decoding through the user's own page table
// (rather than trusting stval to carry the raw word, which the RISC-V
// privileged spec does not guarantee for every illegal-instruction
// cause) mirrors how a real trap handler would have to re-read
// instruction memory to produce a useful diagnostic.
func dumpIllegalInstruction(arena *pmm.Arena, stval uint64) {
	cx := CurrentContext(arena)
	token := sched.CurrentUserToken()

	kfmt.Printf("[trap] IllegalInstruction at sepc=%#x, stval=%#x\n", cx.Sepc, stval)

	raw := readInstructionBytes(token, arena, cx.Sepc)
	if raw == nil {
		kfmt.Printf("[trap] could not read faulting instruction bytes\n")
	} else if inst, err := riscv64asm.Decode(raw); err == nil {
		kfmt.Printf("[trap] faulting instruction: %s\n", inst.String())
	} else {
		kfmt.Printf("[trap] faulting instruction bytes: %x (undecodable: %s)\n", raw, err)
	}

	cx.Dump()
}

// readInstructionBytes returns up to 4 bytes of user instruction memory
// at va, or nil if va isn't mapped. A short read at the very end of a
// mapped page is still useful to riscv64asm.Decode for 16-bit compressed
// encodings.
func readInstructionBytes(token uint64, arena *pmm.Arena, va uint64) (raw []byte) {
	defer func() {
		if recover() != nil {
			raw = nil
		}
	}()
	bufs := pagetable.TranslatedByteBuffers(token, arena, va, 4)
	if len(bufs) == 0 {
		return nil
	}
	return bufs[0]
}
