package fleet

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"github.com/loadbreaker/loadbreaker/internal/registry"
	"github.com/loadbreaker/loadbreaker/internal/runplan"
)

// permuteClamp bounds how many of the runnable entries the permute
// policy enumerates subsets over (§4.4 Permute policy, §9 Open Question
// a). Entries beyond the clamp never permute: they take no part in any
// subset and are not run by RunPermute at all.
const permuteClamp = 16

// Outcome is the scheduler's result for one whole plan (§4.4, §6.4).
type Outcome struct {
	Results []Result
	ByName  map[string]registry.ExitCode
}

func newOutcome() *Outcome {
	return &Outcome{ByName: map[string]registry.ExitCode{}}
}

func (o *Outcome) record(r Result) {
	o.Results = append(o.Results, r)
	name := r.Slot.Entry.Descriptor.Name
	if existing, ok := o.ByName[name]; !ok || registry.MoreSevere(r.ExitCode, existing) {
		o.ByName[name] = r.ExitCode
	}
}

// launchAndReap starts every slot in slots concurrently and reaps them
// all, returning their results in launch order.
func (s *Scheduler) launchAndReap(ctx context.Context, slots []Slot) ([]Result, error) {
	type pending struct {
		cmd  *exec.Cmd
		slot Slot
	}
	var inflight []pending
	for _, slot := range slots {
		cmd, err := s.doSpawn(ctx, slot)
		if err != nil {
			return nil, err
		}
		inflight = append(inflight, pending{cmd: cmd, slot: slot})
	}

	results := make([]Result, 0, len(inflight))
	for _, p := range inflight {
		results = append(results, s.reap(p.cmd, p.slot))
	}
	return results, nil
}

// RunParallel launches every runnable slot of the plan at once and waits
// for all of them (§4.4 "parallel: all selected stressors run
// concurrently").
func (s *Scheduler) RunParallel(ctx context.Context, plan *runplan.Plan) (*Outcome, error) {
	slots := AllocateSlots(plan)
	out := newOutcome()
	results, err := s.launchAndReap(ctx, slots)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		out.record(r)
	}
	return out, nil
}

// RunSequential runs each entry's instances to completion before moving
// to the next entry (§4.4 "sequential: one stressor's instances run to
// completion before the next stressor starts"), honouring Abort.
func (s *Scheduler) RunSequential(ctx context.Context, plan *runplan.Plan) (*Outcome, error) {
	AllocateSlots(plan) // assigns each entry's SlotBase
	out := newOutcome()
	for _, e := range plan.Entries {
		if e.IgnoreRun != runplan.NotIgnored {
			continue
		}
		slots := entrySlots(e)
		results, err := s.launchAndReap(ctx, slots)
		if err != nil {
			return nil, fmt.Errorf("sequential run of %s: %w", e.Descriptor.Name, err)
		}
		worst := registry.Success
		for _, r := range results {
			out.record(r)
			if registry.MoreSevere(r.ExitCode, worst) {
				worst = r.ExitCode
			}
		}
		if s.Abort && worst != registry.Success {
			break
		}
	}
	return out, nil
}

// RunPermute enumerates every non-empty subset of the first permuteClamp
// runnable entries and runs each subset, once, as a parallel pass (§4.4
// Permute policy: "let k = number of runnable entries (clamped to 16).
// For each non-empty subset S of the first k entries (2^k-1 subsets,
// order: natural integer 1..2^k), enable exactly the entries whose bit
// is set, log the subset membership, run the parallel policy, then
// restore all permute flags to false"). Entries beyond the clamp never
// permute: they are excluded from every subset and from this run
// entirely (§9 Open Question a, preserved verbatim).
func (s *Scheduler) RunPermute(ctx context.Context, plan *runplan.Plan) (*Outcome, error) {
	AllocateSlots(plan) // assigns each entry's SlotBase
	var runnable []*runplan.Entry
	for _, e := range plan.Entries {
		if e.IgnoreRun == runplan.NotIgnored {
			runnable = append(runnable, e)
		}
	}

	k := len(runnable)
	if k > permuteClamp {
		k = permuteClamp
	}
	entries := runnable[:k]

	out := newOutcome()
	if k == 0 {
		return out, nil
	}

	numSubsets := 1 << uint(k)
	for subset := 1; subset < numSubsets; subset++ {
		var batch []Slot
		var members []string
		for i, e := range entries {
			bitSet := subset&(1<<uint(i)) != 0
			e.IgnorePermute = !bitSet
			if bitSet {
				members = append(members, e.Descriptor.Name)
				batch = append(batch, entrySlots(e)...)
			}
		}
		log.Printf("[fleet] permute subset %d/%d: %s", subset, numSubsets-1, strings.Join(members, ","))

		results, err := s.launchAndReap(ctx, batch)
		if err != nil {
			for _, e := range entries {
				e.IgnorePermute = false
			}
			return nil, fmt.Errorf("permute subset %d (%s): %w", subset, strings.Join(members, ","), err)
		}
		for _, r := range results {
			out.record(r)
		}
	}

	for _, e := range entries {
		e.IgnorePermute = false
	}
	return out, nil
}

func entrySlots(e *runplan.Entry) []Slot {
	slots := make([]Slot, 0, e.NumInstances)
	base := e.SlotBase
	for i := int32(0); i < e.NumInstances; i++ {
		slots = append(slots, Slot{Entry: e, Instance: i, Index: base + int(i)})
	}
	return slots
}
