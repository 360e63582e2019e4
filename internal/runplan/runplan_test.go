package runplan

import (
	"testing"

	"github.com/loadbreaker/loadbreaker/internal/registry"
)

type okModule struct{ supportErr error }

func (m okModule) Supported(string) error          { return m.supportErr }
func (okModule) Init() error                       { return nil }
func (okModule) Deinit() error                      { return nil }
func (okModule) SetDefault()                       {}
func (okModule) SetLimit(uint64)                    {}
func (okModule) Run(*registry.Args) registry.ExitCode { return registry.Success }
func (okModule) Help() []registry.HelpLine          { return nil }
func (okModule) OptSetters() []registry.OptSetter   { return nil }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	must := func(id uint32, name string, class registry.Class, m registry.Module) {
		if err := r.Register(&registry.Descriptor{ID: id, Name: name, Class: class, Module: m}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	must(1, "cpu", registry.ClassCPU, okModule{})
	must(2, "vm", registry.ClassVM|registry.ClassMemory, okModule{})
	must(3, "bigheap", registry.ClassMemory|registry.ClassPathological, okModule{})
	return r
}

func TestBuildExplicitSelection(t *testing.T) {
	r := newTestRegistry(t)
	p, err := Build(r, Inputs{
		Mode:     ModeExplicitOnly,
		Explicit: map[string]int32{"cpu": 2, "vm": 1},
	}, 4, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(p.Entries))
	}
	byName := map[string]*Entry{}
	for _, e := range p.Entries {
		byName[e.Descriptor.Name] = e
	}
	if byName["cpu"].NumInstances != 2 || byName["vm"].NumInstances != 1 {
		t.Errorf("instance counts = cpu:%d vm:%d, want 2,1", byName["cpu"].NumInstances, byName["vm"].NumInstances)
	}
}

func TestBuildUnknownExplicitNameFails(t *testing.T) {
	r := newTestRegistry(t)
	_, err := Build(r, Inputs{Mode: ModeExplicitOnly, Explicit: map[string]int32{"nope": 1}}, 4, 4)
	if err == nil {
		t.Fatal("Build succeeded, want error for unknown stressor")
	}
}

func TestBuildRandomWithExplicitListFails(t *testing.T) {
	r := newTestRegistry(t)
	_, err := Build(r, Inputs{Mode: ModeRandom, Explicit: map[string]int32{"cpu": 1}, InstanceCount: 2}, 4, 4)
	if err == nil {
		t.Fatal("Build succeeded, want error for random+explicit combination")
	}
}

func TestBuildRandomProducesExactlyNInstances(t *testing.T) {
	r := newTestRegistry(t)
	p, err := Build(r, Inputs{Mode: ModeRandom, InstanceCount: 10, Seed: 42}, 4, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var total int32
	for _, e := range p.Entries {
		total += e.NumInstances
	}
	if total != 10 {
		t.Errorf("total instances = %d, want 10", total)
	}
}

func TestBuildDeterministicForSameSeed(t *testing.T) {
	r := newTestRegistry(t)
	in := Inputs{Mode: ModeRandom, InstanceCount: 20, Seed: 7}
	p1, err := Build(r, in, 4, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p2, err := Build(r, in, 4, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p1.Entries) != len(p2.Entries) {
		t.Fatalf("entry count differs: %d vs %d", len(p1.Entries), len(p2.Entries))
	}
	for i := range p1.Entries {
		if p1.Entries[i].Descriptor.ID != p2.Entries[i].Descriptor.ID ||
			p1.Entries[i].NumInstances != p2.Entries[i].NumInstances {
			t.Fatalf("plan %d differs between identical seeded builds", i)
		}
	}
}

func TestBuildPathologicalExcludedByDefault(t *testing.T) {
	r := newTestRegistry(t)
	// The lone pathological entry is excluded, which leaves nothing
	// runnable; checkRunnable turns that into a hard failure.
	_, err := Build(r, Inputs{Mode: ModeExplicitOnly, Explicit: map[string]int32{"bigheap": 1}}, 4, 4)
	if err == nil {
		t.Fatal("Build succeeded, want error once the only (pathological) entry is excluded")
	}
}

func TestBuildPathologicalAllowedWithFlag(t *testing.T) {
	r := newTestRegistry(t)
	p, err := Build(r, Inputs{
		Mode: ModeExplicitOnly, Explicit: map[string]int32{"bigheap": 1}, AllowPathological: true,
	}, 4, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Entries[0].IgnoreRun != NotIgnored {
		t.Errorf("IgnoreRun = %v, want NotIgnored", p.Entries[0].IgnoreRun)
	}
}

func TestBuildClassFilterZeroesNonMatching(t *testing.T) {
	r := newTestRegistry(t)
	p, err := Build(r, Inputs{
		Mode: ModeAll, InstanceCount: 1, HasClassFilter: true, ClassFilter: registry.ClassCPU,
	}, 2, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	byName := map[string]*Entry{}
	for _, e := range p.Entries {
		byName[e.Descriptor.Name] = e
	}
	if byName["cpu"].NumInstances != 1 {
		t.Errorf("cpu.NumInstances = %d, want 1", byName["cpu"].NumInstances)
	}
	if byName["vm"].NumInstances != 0 {
		t.Errorf("vm.NumInstances = %d, want 0", byName["vm"].NumInstances)
	}
}

func TestBuildClassWithoutMultiSelectModeFails(t *testing.T) {
	r := newTestRegistry(t)
	_, err := Build(r, Inputs{
		Mode: ModeExplicitOnly, HasClassFilter: true, ClassFilter: registry.ClassCPU,
	}, 2, 2)
	if err == nil {
		t.Fatal("Build succeeded, want error for bare --class")
	}
}

func TestBuildUnsupportedOnlyStillSucceeds(t *testing.T) {
	r := registry.New()
	r.Register(&registry.Descriptor{ID: 1, Name: "broken", Class: registry.ClassCPU, Module: okModule{supportErr: errUnsupported}})
	p, err := Build(r, Inputs{Mode: ModeExplicitOnly, Explicit: map[string]int32{"broken": 1}}, 2, 2)
	if err != nil {
		t.Fatalf("Build returned error for purely-unsupported selection: %v", err)
	}
	if p.Entries[0].IgnoreRun != Unsupported {
		t.Errorf("IgnoreRun = %v, want Unsupported", p.Entries[0].IgnoreRun)
	}
}

func TestResolveInstancesConvention(t *testing.T) {
	if got := resolveInstances(0, 8, 4); got != 8 {
		t.Errorf("resolveInstances(0,...) = %d, want 8 (configured CPUs)", got)
	}
	if got := resolveInstances(-1, 8, 4); got != 4 {
		t.Errorf("resolveInstances(-1,...) = %d, want 4 (online CPUs)", got)
	}
	if got := resolveInstances(3, 8, 4); got != 3 {
		t.Errorf("resolveInstances(3,...) = %d, want 3", got)
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

var errUnsupported = testErr("not supported on this host")
