package arena

import "testing"

func TestAllocateDistinctRegions(t *testing.T) {
	a := New(256, nil)

	b1 := a.Allocate(16)
	b2 := a.Allocate(16)

	if len(b1) != 16 || len(b2) != 16 {
		t.Fatalf("unexpected lengths: %d, %d", len(b1), len(b2))
	}

	b1[0] = 0xAA
	b2[0] = 0xBB
	if b1[0] != 0xAA || b2[0] != 0xBB {
		t.Fatalf("allocations alias each other")
	}
}

func TestAllocateCrossesBlockBoundary(t *testing.T) {
	a := New(64, nil)

	for i := range 20 {
		b := a.Allocate(8)
		if len(b) != 8 {
			t.Fatalf("iteration %d: got len %d, want 8", i, len(b))
		}
		b[0] = byte(i)
	}

	if a.ApproximateMemoryUsage() < 160 {
		t.Fatalf("memory usage %d too small for 20x8 bytes across 64-byte blocks", a.ApproximateMemoryUsage())
	}
}

func TestAllocateOversizedFallback(t *testing.T) {
	a := New(64, nil)

	big := a.Allocate(1000)
	if len(big) != 1000 {
		t.Fatalf("len = %d, want 1000", len(big))
	}

	// Oversized allocation must not disturb normal bump allocation.
	small := a.Allocate(8)
	if len(small) != 8 {
		t.Fatalf("len = %d, want 8", len(small))
	}
}

func TestAllocateZeroSize(t *testing.T) {
	a := New(64, nil)
	if got := a.Allocate(0); got != nil {
		t.Fatalf("Allocate(0) = %v, want nil", got)
	}
}

func TestApproximateMemoryUsageMonotonic(t *testing.T) {
	a := New(128, nil)
	var last int64
	for range 10 {
		a.Allocate(32)
		cur := a.ApproximateMemoryUsage()
		if cur < last {
			t.Fatalf("memory usage decreased: %d -> %d", last, cur)
		}
		last = cur
	}
}

func TestReleaseResetsBlocks(t *testing.T) {
	a := New(64, nil)
	a.Allocate(32)
	a.Release()
	if a.cur != nil || a.pos != 0 || a.blocks != nil {
		t.Fatalf("Release did not reset internal state")
	}
}
