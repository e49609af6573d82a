package pagetable

import (
	"fmt"
	"unsafe"

	"github.com/ogurioguri/cradles-os/kernel/mem"
	"github.com/ogurioguri/cradles-os/kernel/pmm"
)

// TranslatedByteBuffers walks the address space named by token and
// returns length bytes starting at the user virtual address ptr as a
// sequence of page-sized (or shorter, at the ends) slices into the
// backing arena. Splitting at page boundaries is unavoidable: the bytes
// on either side of a page boundary need not be physically contiguous.
func TranslatedByteBuffers(token uint64, arena *pmm.Arena, ptr uint64, length int) [][]byte {
	pt := FromToken(token, arena)

	var out [][]byte
	start := ptr
	end := ptr + uint64(length)
	for start < end {
		va := mem.NewVirtAddr(start)
		vpn := va.FloorPage()
		pte, ok := pt.Translate(vpn)
		if !ok {
			panic(fmt.Sprintf("pagetable: translate: %s is not mapped", vpn))
		}

		pageBytes := arena.PageBytes(pte.PPN())
		pageEnd := (vpn + 1).ToVirtAddr().Value()
		chunkEnd := end
		if pageEnd < chunkEnd {
			chunkEnd = pageEnd
		}
		off := va.PageOffset()
		out = append(out, pageBytes[off:off+(chunkEnd-start)])
		start = chunkEnd
	}
	return out
}

// TranslatedString reads a NUL-terminated byte string starting at the
// user virtual address ptr, crossing page boundaries as needed, and
// returns it without the trailing NUL.
func TranslatedString(token uint64, arena *pmm.Arena, ptr uint64) []byte {
	pt := FromToken(token, arena)

	var out []byte
	va := ptr
	for {
		vpn := mem.NewVirtAddr(va).FloorPage()
		pte, ok := pt.Translate(vpn)
		if !ok {
			panic(fmt.Sprintf("pagetable: translate: %s is not mapped", vpn))
		}
		pageBytes := arena.PageBytes(pte.PPN())
		off := mem.NewVirtAddr(va).PageOffset()
		for ; off < uint64(len(pageBytes)); off++ {
			b := pageBytes[off]
			if b == 0 {
				return out
			}
			out = append(out, b)
			va++
		}
	}
}

// TranslatedRef returns a pointer to a T backed by the physical page
// mapped at ptr in the address space named by token. The value must not
// straddle a page boundary; every caller in this kernel (syscall return
// values, trap-context fields) satisfies that by construction.
func TranslatedRef[T any](token uint64, arena *pmm.Arena, ptr uint64) *T {
	pt := FromToken(token, arena)
	va := mem.NewVirtAddr(ptr)
	pte, ok := pt.Translate(va.FloorPage())
	if !ok {
		panic(fmt.Sprintf("pagetable: translate: %s is not mapped", va))
	}
	pageBytes := arena.PageBytes(pte.PPN())
	return (*T)(unsafe.Pointer(&pageBytes[va.PageOffset()]))
}
