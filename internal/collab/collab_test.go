package collab

import (
	"context"
	"testing"
)

func TestNewRegistryHasAllEleven(t *testing.T) {
	r := NewRegistry()
	want := []string{
		"perf", "thermal", "ftrace", "klog", "vmstat", "smart",
		"thrash", "clocksource", "oom-avoid", "cpuidle", "ksm",
	}
	if len(r) != len(want) {
		t.Fatalf("len(registry) = %d, want %d", len(r), len(want))
	}
	for _, name := range want {
		if _, ok := r[name]; !ok {
			t.Errorf("registry missing %q", name)
		}
	}
}

func TestSelectReportsUnknownName(t *testing.T) {
	r := NewRegistry()
	_, unavailable := r.Select([]string{"not-a-real-collaborator"})
	if _, ok := unavailable["not-a-real-collaborator"]; !ok {
		t.Error("expected unknown collaborator name to be reported unavailable")
	}
}

type fakeRunner struct {
	outputs [][]byte
	i       int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out := f.outputs[f.i]
	if f.i < len(f.outputs)-1 {
		f.i++
	}
	return out, nil
}

func TestKlogCountsNewMarkerLines(t *testing.T) {
	k := &klogAdapter{runner: &fakeRunner{outputs: [][]byte{
		[]byte("line1\nline2\n"),
		[]byte("line1\nline2\nOut of memory: Killed process 1234\n"),
	}}}
	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	vals, err := k.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if vals["marker:Out of memory"] != 1 {
		t.Errorf("marker count = %v, want 1", vals["marker:Out of memory"])
	}
}

func TestClocksourceDetectsChange(t *testing.T) {
	c := &clocksourceAdapter{before: "tsc"}
	// Stop reads the real sysfs file, so the comparison Stop applies is
	// exercised directly with a simulated post-run value.
	if changed := clocksourceChanged(c.before, "hpet"); changed != 1.0 {
		t.Error("expected clocksource change to be detected")
	}
}
