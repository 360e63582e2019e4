package shared

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestNewPlaneLayout(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if len(p.Stats) != 4 {
		t.Fatalf("len(Stats) = %d, want 4", len(p.Stats))
	}
	if len(p.Checksums) != 4 {
		t.Fatalf("len(Checksums) = %d, want 4", len(p.Checksums))
	}
	if p.Header.SegmentLength == 0 {
		t.Fatal("SegmentLength not set")
	}
}

func TestStatsWriteReadRoundTrip(t *testing.T) {
	p, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	p.Stats[0].CounterTotal = 12345
	p.Stats[0].RunOK = 1
	if p.Stats[0].CounterTotal != 12345 {
		t.Fatalf("CounterTotal round-trip failed")
	}

	p.Checksums[1].Counter = 9
	if p.Checksums[1].Counter != 9 {
		t.Fatalf("Checksums round-trip failed")
	}
}

func TestGuardPageLeavesUsableRegionWritable(t *testing.T) {
	if testing.Short() {
		t.Skip("guard-page mapping check skipped in -short mode")
	}
	// The guard page is verified indirectly: mprotect must not error,
	// and must leave the rest of the mapping read-write.
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	p.Stats[0].CounterTotal = 1 // still-usable region must remain writable
	if p.Stats[0].CounterTotal != 1 {
		t.Fatal("usable region unexpectedly unwritable")
	}
}

func TestSentinelsProtections(t *testing.T) {
	h := &Header{}
	s, err := NewSentinels(h)
	if err != nil {
		t.Fatalf("NewSentinels: %v", err)
	}
	defer s.Close()

	if h.MappedNone != 1 || h.MappedRO != 1 || h.MappedWO != 1 {
		t.Fatalf("mapped counters = %d/%d/%d, want 1/1/1", h.MappedNone, h.MappedRO, h.MappedWO)
	}
	// The RO sentinel is a live mapping: re-protecting it read-write must
	// succeed. No write is attempted against its read-only state.
	err = unix.Mprotect(s.RO, unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		t.Fatalf("re-protecting RO sentinel for cleanup: %v", err)
	}
}

func TestPageAlign(t *testing.T) {
	cases := []struct{ n, page, want int }{
		{0, 4096, 0},
		{1, 4096, 4096},
		{4096, 4096, 4096},
		{4097, 4096, 8192},
	}
	for _, c := range cases {
		if got := pageAlign(c.n, c.page); got != c.want {
			t.Errorf("pageAlign(%d,%d) = %d, want %d", c.n, c.page, got, c.want)
		}
	}
}
