package heap

import "testing"

func TestBuddyAllocAndFreeRoundTrip(t *testing.T) {
	h := New()
	h.Init(0x1000_0000, 1<<20)

	a, ok := h.Alloc(100, 8)
	if !ok {
		t.Fatal("expected alloc to succeed")
	}
	if a%8 != 0 {
		t.Errorf("expected 8-byte alignment, got addr %#x", a)
	}

	b, ok := h.Alloc(200, 16)
	if !ok {
		t.Fatal("expected second alloc to succeed")
	}
	if b%16 != 0 {
		t.Errorf("expected 16-byte alignment, got addr %#x", b)
	}

	beforeUser, beforeAlloc, beforeTotal := h.Stats()
	if beforeUser == 0 || beforeAlloc == 0 {
		t.Fatal("expected non-zero usage stats after allocation")
	}

	h.Free(a, 100, 8)
	h.Free(b, 200, 16)

	afterUser, afterAlloc, afterTotal := h.Stats()
	if afterUser != 0 || afterAlloc != 0 {
		t.Errorf("expected usage to return to zero after freeing everything: user=%d allocated=%d", afterUser, afterAlloc)
	}
	if afterTotal != beforeTotal {
		t.Errorf("expected total capacity to be unaffected by alloc/free: before=%d after=%d", beforeTotal, afterTotal)
	}
}

func TestBuddyCoalescesBuddies(t *testing.T) {
	h := New()
	h.Init(0x2000_0000, 4096)

	a, _ := h.Alloc(100, 8)
	b, _ := h.Alloc(100, 8)

	// Freeing both halves should merge back into a single free block
	// capable of satisfying an allocation as large as the original region.
	h.Free(a, 100, 8)
	h.Free(b, 100, 8)

	big, ok := h.Alloc(4000, 8)
	if !ok {
		t.Fatal("expected coalesced free space to satisfy a large allocation")
	}
	h.Free(big, 4000, 8)
}

func TestBuddyAllocWritableBytes(t *testing.T) {
	h := New()
	h.Init(0x3000_0000, 4096)

	addr, ok := h.Alloc(64, 8)
	if !ok {
		t.Fatal("expected alloc to succeed")
	}

	buf := h.Bytes(addr, 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	buf2 := h.Bytes(addr, 64)
	for i := range buf2 {
		if buf2[i] != byte(i) {
			t.Fatalf("expected byte %d to persist, got %d", i, buf2[i])
		}
	}
}

func TestBuddyExhaustionIsDeterministic(t *testing.T) {
	h := New()
	h.Init(0x4000_0000, 1024)

	if _, ok := h.Alloc(2048, 8); ok {
		t.Fatal("expected allocation larger than the region to fail")
	}
}

func TestBuddyInitPanicsOnZeroBase(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic initializing with base address 0")
		}
	}()
	New().Init(0, 4096)
}
