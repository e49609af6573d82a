package memset

import (
	"fmt"

	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/pagetable"
)

// SelfCheckKernelSpace verifies the kernel image's sections carry the
// permissions NewKernel mapped them with: .text and .rodata must come
// out non-writable, .data must come out writable. It returns an error
// naming the first section that fails rather than panicking, so
// cmd/kmain's boot sequence can decide how fatal a mismatch is.
func SelfCheckKernelSpace(ms *MemorySet, layout KernelImageLayout) error {
	check := func(section string, midVA uint64, wantWritable bool) error {
		vpn := mem.NewVirtAddr(midVA).FloorPage()
		pte, ok := ms.pt.Translate(vpn)
		if !ok {
			return fmt.Errorf("memset: self-check: %s midpoint %s is unmapped", section, vpn)
		}
		if pte.HasFlags(pagetable.FlagW) != wantWritable {
			return fmt.Errorf("memset: self-check: %s writable=%t, want %t", section, pte.HasFlags(pagetable.FlagW), wantWritable)
		}
		return nil
	}

	if err := check(".text", (layout.TextStart+layout.TextEnd)/2, false); err != nil {
		return err
	}
	if err := check(".rodata", (layout.RodataStart+layout.RodataEnd)/2, false); err != nil {
		return err
	}
	if err := check(".data", (layout.DataStart+layout.DataEnd)/2, true); err != nil {
		return err
	}
	return nil
}
