// Package heap implements the buddy allocator that backs dynamic memory
// allocation in supervisor mode: fixed classes of power-of-two block
// sizes, intrusive free lists stored inside the free blocks themselves,
// and XOR-buddy coalescing on free.
package heap

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	ksync "github.com/ogurioguri/cradles-os/kernel/sync"
)

const (
	maxOrder = 32
	wordSize = 8
	noFree   = ^uint64(0)
)

// BuddyAllocator is a buddy allocator over a single contiguous byte
// region. It is safe for concurrent use: every public method takes an
// internal spinlock, because unlike most kernel global state this one is
// reachable from allocation paths that aren't naturally single-borrowed.
type BuddyAllocator struct {
	lock ksync.Spinlock

	base     uint64
	data     []byte
	freeList [maxOrder]uint64

	userBytes, allocatedBytes, totalBytes uint64
}

// New returns an allocator with no backing region; call Init before use.
func New() *BuddyAllocator {
	h := &BuddyAllocator{}
	for i := range h.freeList {
		h.freeList[i] = noFree
	}
	return h
}

// Init (re)initializes the allocator over [base, base+size). base must be
// non-zero: the buddy-coalescing trick identifies an address's alignment
// from its low bits, which degenerates for address 0.
func (h *BuddyAllocator) Init(base, size uint64) {
	if base == 0 {
		panic("heap: base address must be non-zero")
	}

	h.lock.Acquire()
	defer h.lock.Release()

	for i := range h.freeList {
		h.freeList[i] = noFree
	}
	h.base = base
	h.data = make([]byte, size)
	h.userBytes, h.allocatedBytes, h.totalBytes = 0, 0, 0
	h.add(base, base+size)
}

// add decomposes [start, end) into maximal power-of-two-aligned chunks
// and pushes each onto its size class's free list.
func (h *BuddyAllocator) add(start, end uint64) {
	start = (start + wordSize - 1) &^ (wordSize - 1)
	end = end &^ (wordSize - 1)
	if start >= end {
		panic(fmt.Sprintf("heap: invalid region [%#x, %#x)", start, end))
	}

	size := end - start
	order := bits.TrailingZeros64(size)
	if order >= maxOrder {
		panic(fmt.Sprintf("heap: region too large: size=%#x order=%d", size, order))
	}

	var total uint64
	current := start
	for current+wordSize <= end {
		lowbit := current & (^current + 1)
		chunk := min(lowbit, prevPowerOfTwo(end-current))
		total += chunk
		h.push(bits.TrailingZeros64(chunk), current)
		current += chunk
	}
	h.totalBytes += total
}

// Alloc returns the address of a block of at least size bytes, aligned to
// at least align, or ok=false if the allocator has no block large enough.
func (h *BuddyAllocator) Alloc(size, align uint64) (addr uint64, ok bool) {
	want := max64(nextPowerOfTwo(size), max64(align, wordSize))
	class := bits.TrailingZeros64(want)

	h.lock.Acquire()
	defer h.lock.Release()

	for i := class; i < maxOrder; i++ {
		if h.freeList[i] == noFree {
			continue
		}

		for j := i; j > class; j-- {
			block, found := h.pop(j)
			if !found {
				return 0, false
			}
			h.push(j-1, block+(1<<(j-1)))
			h.push(j-1, block)
		}

		block, found := h.pop(class)
		if !found {
			return 0, false
		}
		h.userBytes += size
		h.allocatedBytes += want
		return block, true
	}

	return 0, false
}

// Free returns a block previously returned by Alloc with the same size
// and align arguments, coalescing with its buddy wherever possible.
func (h *BuddyAllocator) Free(addr, size, align uint64) {
	want := max64(nextPowerOfTwo(size), max64(align, wordSize))
	class := bits.TrailingZeros64(want)

	h.lock.Acquire()
	defer h.lock.Release()

	h.push(class, addr)

	current := addr
	for class < maxOrder-1 {
		buddy := current ^ (1 << uint(class))
		if !h.remove(class, buddy) {
			break
		}
		h.remove(class, current)
		if buddy < current {
			current = buddy
		}
		class++
		h.push(class, current)
	}

	h.userBytes -= size
	h.allocatedBytes -= want
}

// Bytes returns the size bytes of backing storage at addr, a value
// previously returned by Alloc.
func (h *BuddyAllocator) Bytes(addr uint64, size int) []byte {
	off := addr - h.base
	return h.data[off : off+uint64(size)]
}

// Stats reports bytes requested by callers, bytes actually reserved
// (rounded up to the allocator's size classes), and the total capacity of
// the region.
func (h *BuddyAllocator) Stats() (userBytes, allocatedBytes, totalBytes uint64) {
	h.lock.Acquire()
	defer h.lock.Release()
	return h.userBytes, h.allocatedBytes, h.totalBytes
}

func (h *BuddyAllocator) blockAt(addr uint64) []byte {
	off := addr - h.base
	return h.data[off : off+wordSize]
}

func (h *BuddyAllocator) push(class int, addr uint64) {
	binary.LittleEndian.PutUint64(h.blockAt(addr), h.freeList[class])
	h.freeList[class] = addr
}

func (h *BuddyAllocator) pop(class int) (uint64, bool) {
	addr := h.freeList[class]
	if addr == noFree {
		return 0, false
	}
	h.freeList[class] = binary.LittleEndian.Uint64(h.blockAt(addr))
	return addr, true
}

// remove unlinks addr from class's free list if present.
func (h *BuddyAllocator) remove(class int, addr uint64) bool {
	if h.freeList[class] == addr {
		h.freeList[class] = binary.LittleEndian.Uint64(h.blockAt(addr))
		return true
	}
	prev := h.freeList[class]
	for prev != noFree {
		next := binary.LittleEndian.Uint64(h.blockAt(prev))
		if next == addr {
			nextNext := binary.LittleEndian.Uint64(h.blockAt(addr))
			binary.LittleEndian.PutUint64(h.blockAt(prev), nextNext)
			return true
		}
		prev = next
	}
	return false
}

func prevPowerOfTwo(n uint64) uint64 {
	return 1 << (63 - bits.LeadingZeros64(n))
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
