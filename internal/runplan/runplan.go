// Package runplan translates stressor-selection inputs into the ordered
// run list the fleet scheduler executes (§2.2/§4.1), grounded on the
// teacher's profile-driven collector selection
// (internal/orchestrator/profiles.go's GetProfile + RegisterCollectors
// filtering) generalised to the mode/class/exclude/with rule set spec.md
// describes.
package runplan

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// IgnoreRun classifies why an entry will not spawn children (§3).
type IgnoreRun int

const (
	NotIgnored IgnoreRun = iota
	Unsupported
	Excluded
)

// Mode selects the top-level selection strategy (§4.1).
type Mode int

const (
	ModeExplicitOnly Mode = iota
	ModeAll
	ModeSequential
	ModePermute
	ModeRandom
)

// Inputs is the Run-Plan Builder's contract (§4.1).
type Inputs struct {
	Explicit          map[string]int32
	ClassFilter       registry.Class
	HasClassFilter    bool
	Mode              Mode
	InstanceCount     int32 // N for all/sequential/permute/random
	WithNames         []string
	ExcludeNames      []string
	AllowPathological bool
	Seed              int64
}

// Entry is one row of the run list (§3 Run-list entry).
type Entry struct {
	Descriptor      *registry.Descriptor
	NumInstances    int32
	OpsBudget       uint64
	IgnoreRun       IgnoreRun
	IgnorePermute   bool
	StatusPassed    int
	StatusSkipped   int
	StatusFailed    int
	StatusBadMetric int
	Completed       int

	// SlotBase is the index of this entry's first instance in the shared
	// plane's stats/checksum slices, assigned by fleet.AllocateSlots.
	SlotBase int
}

// Plan is the ordered run list produced by Build.
type Plan struct {
	Entries []*Entry
}

// resolveInstances applies the §4.1 counting convention:
// 0 = configured CPUs, negative = online CPUs.
func resolveInstances(n int32, configuredCPUs, onlineCPUs int32) int32 {
	switch {
	case n == 0:
		return configuredCPUs
	case n < 0:
		return onlineCPUs
	default:
		return n
	}
}

// Build constructs the run list per §4.1's ordered rules. configuredCPUs
// and onlineCPUs are the two CPU counts the "0"/"negative" instance-count
// convention resolves against.
func Build(reg *registry.Registry, in Inputs, configuredCPUs, onlineCPUs int32) (*Plan, error) {
	if err := validateModes(in); err != nil {
		return nil, err
	}

	entries := make(map[uint32]*Entry)
	order := []uint32{}
	ensure := func(d *registry.Descriptor) *Entry {
		if e, ok := entries[d.ID]; ok {
			return e
		}
		e := &Entry{Descriptor: d}
		entries[d.ID] = e
		order = append(order, d.ID)
		return e
	}

	// Rule 1: seed from explicit mentions.
	for name, count := range in.Explicit {
		d, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("runplan: unknown stressor %q", name)
		}
		e := ensure(d)
		e.NumInstances = resolveInstances(count, configuredCPUs, onlineCPUs)
	}

	// Rule 2: random-N sampling with replacement.
	if in.Mode == ModeRandom {
		if len(in.Explicit) > 0 {
			return nil, fmt.Errorf("runplan: random mode cannot combine with explicit stressor list")
		}
		all := reg.All()
		if len(all) == 0 {
			return nil, fmt.Errorf("runplan: empty catalog, cannot sample")
		}
		rng := rand.New(rand.NewSource(in.Seed))
		n := resolveInstances(in.InstanceCount, configuredCPUs, onlineCPUs)
		for i := int32(0); i < n; i++ {
			d := all[rng.Intn(len(all))]
			e := ensure(d)
			e.NumInstances++
		}
	}

	// Rule 3: sequential/parallel/permute seeding via with-list or full catalog.
	if in.Mode == ModeSequential || in.Mode == ModeAll || in.Mode == ModePermute {
		n := resolveInstances(in.InstanceCount, configuredCPUs, onlineCPUs)
		if len(in.WithNames) > 0 {
			for _, name := range in.WithNames {
				d, ok := reg.Lookup(name)
				if !ok {
					return nil, fmt.Errorf("runplan: unknown stressor %q in --with list", name)
				}
				ensure(d).NumInstances = n
			}
		} else {
			for _, d := range reg.All() {
				ensure(d).NumInstances = n
			}
		}
	}

	if err := validateClassUsage(in); err != nil {
		return nil, err
	}

	// Rule 4: class filter zeroes instance counts for non-matching entries
	// but keeps them in the list.
	if in.HasClassFilter {
		for _, id := range order {
			e := entries[id]
			if e.Descriptor.Class&in.ClassFilter == 0 {
				e.NumInstances = 0
			}
		}
	}

	// Rule 5: supported() gate.
	for _, id := range order {
		e := entries[id]
		if e.NumInstances == 0 {
			continue
		}
		if err := e.Descriptor.Module.Supported(e.Descriptor.Name); err != nil {
			e.IgnoreRun = Unsupported
		}
	}

	// Rule 6: pathological gate.
	if !in.AllowPathological {
		for _, id := range order {
			e := entries[id]
			if e.Descriptor.Class&registry.ClassPathological != 0 && e.NumInstances > 0 {
				e.IgnoreRun = Excluded
			}
		}
	}

	// Rule 7: explicit exclusion list.
	excludeSet := map[string]bool{}
	for _, n := range in.ExcludeNames {
		d, ok := reg.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("runplan: unknown stressor %q in --exclude list", n)
		}
		excludeSet[d.Name] = true
	}
	for _, id := range order {
		e := entries[id]
		if excludeSet[e.Descriptor.Name] {
			e.IgnoreRun = Excluded
		}
	}

	plan := &Plan{}
	for _, id := range order {
		plan.Entries = append(plan.Entries, entries[id])
	}
	// Deterministic ordering (§8 property 1): by descriptor id, which is
	// registration order, not insertion order of this particular call.
	sort.Slice(plan.Entries, func(i, j int) bool {
		return plan.Entries[i].Descriptor.ID < plan.Entries[j].Descriptor.ID
	})

	if err := checkRunnable(plan); err != nil {
		return nil, err
	}

	return plan, nil
}

func validateModes(in Inputs) error {
	exclusive := 0
	for _, set := range []bool{in.Mode == ModeRandom, in.Mode == ModeSequential, in.Mode == ModeAll, in.Mode == ModePermute} {
		if set {
			exclusive++
		}
	}
	if exclusive > 1 {
		return fmt.Errorf("runplan: random/sequential/all/permute modes are mutually exclusive")
	}
	return nil
}

func validateClassUsage(in Inputs) error {
	if in.HasClassFilter && in.Mode == ModeExplicitOnly && len(in.Explicit) == 0 {
		return fmt.Errorf("runplan: --class requires a multi-select mode (all/sequential/permute/random)")
	}
	return nil
}

// checkRunnable enforces "zero resulting runnable entries: fail unless
// the cause was purely unsupported" (§4.1 Failure semantics).
func checkRunnable(p *Plan) error {
	runnable := 0
	allUnsupported := true
	any := false
	for _, e := range p.Entries {
		if e.NumInstances == 0 {
			continue
		}
		any = true
		if e.IgnoreRun == NotIgnored {
			runnable++
			allUnsupported = false
		} else if e.IgnoreRun == Excluded {
			allUnsupported = false
		}
	}
	if runnable == 0 && any && !allUnsupported {
		return fmt.Errorf("runplan: no runnable stressors remain (excluded by class/pathological/exclude filters)")
	}
	if runnable == 0 && !any {
		return fmt.Errorf("runplan: no stressors selected")
	}
	return nil
}

// ListUnknown renders a friendly listing of valid names for error
// messages (§4.1 Failure semantics: "hard fail with a listing of valid
// names").
func ListUnknown(reg *registry.Registry, bad string) string {
	return fmt.Sprintf("unknown stressor %q; valid names: %s", bad, strings.Join(reg.Names(), ", "))
}
