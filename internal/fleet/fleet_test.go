package fleet

import (
	"context"
	"os/exec"
	"testing"

	"github.com/loadbreaker/loadbreaker/internal/registry"
	"github.com/loadbreaker/loadbreaker/internal/runplan"
	"github.com/loadbreaker/loadbreaker/internal/shared"
)

func testPlan(t *testing.T, instances ...int32) *runplan.Plan {
	t.Helper()
	plan := &runplan.Plan{}
	for i, n := range instances {
		d := &registry.Descriptor{ID: uint32(i + 1), Name: "fake" + string(rune('a'+i))}
		plan.Entries = append(plan.Entries, &runplan.Entry{
			Descriptor:   d,
			NumInstances: n,
			IgnoreRun:    runplan.NotIgnored,
		})
	}
	return plan
}

// fakeSpawn replaces real re-exec with /bin/true or /bin/false so tests
// exercise the scheduler's bookkeeping without a real worker binary.
func fakeSpawn(exitOK bool) func(ctx context.Context, s *Scheduler, slot Slot) (*exec.Cmd, error) {
	return func(ctx context.Context, s *Scheduler, slot Slot) (*exec.Cmd, error) {
		bin := "/bin/true"
		if !exitOK {
			bin = "/bin/false"
		}
		cmd := exec.CommandContext(ctx, bin)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}
}

func newTestScheduler(n int, exitOK bool) *Scheduler {
	plane, _ := shared.New(n)
	s := NewScheduler(plane, nil, "")
	s.spawn = fakeSpawn(exitOK)
	return s
}

func TestAllocateSlotsAssignsSlotBase(t *testing.T) {
	plan := testPlan(t, 2, 3)
	slots := AllocateSlots(plan)
	if len(slots) != 5 {
		t.Fatalf("len(slots) = %d, want 5", len(slots))
	}
	if plan.Entries[0].SlotBase != 0 || plan.Entries[1].SlotBase != 2 {
		t.Errorf("SlotBase = %d,%d want 0,2", plan.Entries[0].SlotBase, plan.Entries[1].SlotBase)
	}
}

func TestAllocateSlotsSkipsIgnoredEntries(t *testing.T) {
	plan := testPlan(t, 2)
	plan.Entries[0].IgnoreRun = runplan.Excluded
	slots := AllocateSlots(plan)
	if len(slots) != 0 {
		t.Fatalf("len(slots) = %d, want 0 for excluded entry", len(slots))
	}
}

func TestRunParallelSucceedsWithAllOK(t *testing.T) {
	plan := testPlan(t, 2, 1)
	s := newTestScheduler(3, true)
	defer s.Plane.Close()

	out, err := s.RunParallel(context.Background(), plan)
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(out.Results))
	}
	for name, code := range out.ByName {
		if code != registry.Success {
			t.Errorf("entry %s exit code = %v, want Success", name, code)
		}
	}
}

func TestRunSequentialAbortsAfterFailure(t *testing.T) {
	plan := testPlan(t, 1, 1)
	s := newTestScheduler(2, false)
	s.Abort = true
	defer s.Plane.Close()

	out, err := s.RunSequential(context.Background(), plan)
	if err != nil {
		t.Fatalf("RunSequential: %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1 (abort after first entry fails)", len(out.Results))
	}
}

// TestRunPermuteEnumeratesNonEmptySubsets matches spec.md's scenario S4:
// --permute over exactly 3 runnable entries {A,B,C} must run all
// 2^3-1=7 non-empty subsets, with each entry participating in exactly
// 2^(3-1)=4 of them.
func TestRunPermuteEnumeratesNonEmptySubsets(t *testing.T) {
	plan := testPlan(t, 1, 1, 1)
	s := newTestScheduler(3, true)
	defer s.Plane.Close()

	out, err := s.RunPermute(context.Background(), plan)
	if err != nil {
		t.Fatalf("RunPermute: %v", err)
	}

	wantTotal := 12 // sum of popcount(1..7) for k=3
	if len(out.Results) != wantTotal {
		t.Fatalf("len(Results) = %d, want %d (7 subsets of {A,B,C})", len(out.Results), wantTotal)
	}

	counts := map[string]int{}
	for _, r := range out.Results {
		counts[r.Slot.Entry.Descriptor.Name]++
	}
	if len(counts) != 3 {
		t.Fatalf("participating entries = %d, want 3", len(counts))
	}
	for name, c := range counts {
		if c != 4 {
			t.Errorf("entry %s participated in %d subsets, want 4 (2^(k-1))", name, c)
		}
	}

	for _, e := range plan.Entries {
		if e.IgnorePermute {
			t.Errorf("entry %s left with IgnorePermute=true after RunPermute returned", e.Descriptor.Name)
		}
	}
}

// TestRunPermuteClampExcludesOverflowEntries exercises §9 Open Question
// a: entries beyond the 16-entry clamp never permute and never run.
func TestRunPermuteClampExcludesOverflowEntries(t *testing.T) {
	instances := make([]int32, permuteClamp+1)
	for i := range instances {
		instances[i] = 1
	}
	plan := testPlan(t, instances...)
	s := newTestScheduler(len(instances), true)
	defer s.Plane.Close()

	out, err := s.RunPermute(context.Background(), plan)
	if err != nil {
		t.Fatalf("RunPermute: %v", err)
	}

	overflow := plan.Entries[permuteClamp]
	for _, r := range out.Results {
		if r.Slot.Entry == overflow {
			t.Fatalf("overflow entry %s ran but must never permute", overflow.Descriptor.Name)
		}
	}
	if _, ran := out.ByName[overflow.Descriptor.Name]; ran {
		t.Errorf("overflow entry %s recorded a result, want none", overflow.Descriptor.Name)
	}
}

func TestOnlineCPUsReturnsNonEmpty(t *testing.T) {
	cpus := OnlineCPUs()
	if len(cpus) == 0 {
		t.Skip("no affinity mask available in this sandbox")
	}
}
