// Package collab implements the external collaborator adapters (§5):
// optional, best-effort integrations with host facilities that annotate
// a run but are never required for it to proceed.
//
// The Adapter interface and its Availability{Tier,Reason} gating are
// grounded on the teacher's internal/collector.Collector/Availability --
// generalised from "gather one metric category" to "sample one kernel
// or hardware facility before/after a run and report the delta".
package collab

import "context"

// Availability reports whether an adapter can run on this host and why
// not, when it can't (§5 "every adapter degrades gracefully").
type Availability struct {
	Tier   int // 0 = unavailable, 1 = available
	Reason string
}

// Adapter samples one external facility around a run.
type Adapter interface {
	// Name identifies the adapter, matching the stressor class/option
	// names used in SPEC_FULL.md's collaborator table.
	Name() string

	// Available reports whether this host exposes the facility at all.
	Available() Availability

	// Start begins sampling (e.g. opens a perf event, snapshots a
	// counter file). Called once before the run-plan executes.
	Start(ctx context.Context) error

	// Stop ends sampling and returns the collected samples as a flat
	// key/value set suitable for folding into the report's aux metrics.
	Stop(ctx context.Context) (map[string]float64, error)
}

// Registry is the fixed set of adapters a run can request by name.
type Registry map[string]Adapter

// NewRegistry builds the full collaborator set (§5), each gated by its
// own Available() check so an adapter absent on this host is simply
// skipped rather than failing the run.
func NewRegistry() Registry {
	all := []Adapter{
		NewPerf(),
		NewThermal(),
		NewFtrace(),
		NewKlog(),
		NewVMStat(),
		NewSMART(),
		NewThrash(),
		NewClocksource(),
		NewOOMAvoid(),
		NewCPUIdle(),
		NewKSM(),
	}
	r := make(Registry, len(all))
	for _, a := range all {
		r[a.Name()] = a
	}
	return r
}

// Select filters the registry to the requested, available adapters,
// returning the names of any that were requested but unavailable.
func (r Registry) Select(names []string) (active []Adapter, unavailable map[string]string) {
	unavailable = map[string]string{}
	for _, name := range names {
		a, ok := r[name]
		if !ok {
			unavailable[name] = "no such collaborator"
			continue
		}
		if avail := a.Available(); avail.Tier == 0 {
			unavailable[name] = avail.Reason
			continue
		}
		active = append(active, a)
	}
	return active, unavailable
}
