package registry

import "testing"

type fakeModule struct{}

func (fakeModule) Supported(string) error  { return nil }
func (fakeModule) Init() error             { return nil }
func (fakeModule) Deinit() error           { return nil }
func (fakeModule) SetDefault()             {}
func (fakeModule) SetLimit(uint64)         {}
func (fakeModule) Run(*Args) ExitCode      { return Success }
func (fakeModule) Help() []HelpLine        { return nil }
func (fakeModule) OptSetters() []OptSetter { return nil }

func TestRegisterAndLookupByMungedName(t *testing.T) {
	r := New()
	if err := r.Register(&Descriptor{ID: 1, Name: "cpu-cache", Class: ClassCPUCache, Module: fakeModule{}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, name := range []string{"cpu-cache", "cpu_cache", "CPU-CACHE", " cpu_cache "} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("Lookup(%q) failed, want found", name)
		}
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Error("Lookup(\"nope\") succeeded, want not found")
	}
}

func TestRegisterDuplicateIDRejected(t *testing.T) {
	r := New()
	if err := r.Register(&Descriptor{ID: 1, Name: "a", Module: fakeModule{}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&Descriptor{ID: 1, Name: "b", Module: fakeModule{}}); err == nil {
		t.Error("Register with duplicate id succeeded, want error")
	}
}

func TestRegisterDuplicateNameRejected(t *testing.T) {
	r := New()
	if err := r.Register(&Descriptor{ID: 1, Name: "a", Module: fakeModule{}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&Descriptor{ID: 2, Name: "a", Module: fakeModule{}}); err == nil {
		t.Error("Register with duplicate name succeeded, want error")
	}
}

func TestByClassSortedAndFiltered(t *testing.T) {
	r := New()
	r.Register(&Descriptor{ID: 1, Name: "zeta", Class: ClassCPU, Module: fakeModule{}})
	r.Register(&Descriptor{ID: 2, Name: "alpha", Class: ClassCPU | ClassMemory, Module: fakeModule{}})
	r.Register(&Descriptor{ID: 3, Name: "beta", Class: ClassNetwork, Module: fakeModule{}})

	got := r.ByClass(ClassCPU)
	if len(got) != 2 {
		t.Fatalf("ByClass(cpu) = %d entries, want 2", len(got))
	}
	if got[0].Name != "alpha" || got[1].Name != "zeta" {
		t.Errorf("ByClass(cpu) order = %v, want [alpha zeta]", []string{got[0].Name, got[1].Name})
	}
}

func TestParseClassAndString(t *testing.T) {
	c, ok := ParseClass("CPU")
	if !ok || c != ClassCPU {
		t.Fatalf("ParseClass(CPU) = %v,%v want ClassCPU,true", c, ok)
	}
	combo := ClassCPU | ClassMemory
	s := combo.String()
	if s != "cpu,memory" {
		t.Errorf("String() = %q, want %q", s, "cpu,memory")
	}
}

func TestMoreSevereOrdering(t *testing.T) {
	cases := []struct {
		a, b ExitCode
		want bool
	}{
		{Failure, Success, true},
		{NotSuccess, MetricsUntrustworthy, true},
		{NoResource, NotSuccess, false},
		{Success, Failure, false},
	}
	for _, c := range cases {
		if got := MoreSevere(c.a, c.b); got != c.want {
			t.Errorf("MoreSevere(%v,%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
