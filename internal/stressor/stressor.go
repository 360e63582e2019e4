// Package stressor holds the concrete workload bodies the fleet
// scheduler drives through the registry.Module interface. Spec.md treats
// stressor bodies as external collaborators the core only sees through
// that interface (§1); this package supplies a small sample catalog
// (six stressors, see Catalog) so the orchestrator has real work to schedule,
// styled after the teacher's tiered collectors
// (internal/collector/{cpu,memory,disk,network,process}.go) -- a small
// config-holding struct per workload, a constructor, and a tight
// procfs/syscall-driven inner loop.
package stressor

import (
	"time"

	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// base carries the bookkeeping shared by every stressor in this package:
// an options-settable limit, and the two lifecycle no-ops most stressors
// don't need to customise.
type base struct {
	limit uint64
}

func (b *base) SetDefault()        {}
func (b *base) SetLimit(max uint64) { b.limit = max }
func (b *base) Init() error         { return nil }
func (b *base) Deinit() error       { return nil }
func (b *base) OptSetters() []registry.OptSetter { return nil }

// runLoop drives the common "while not asked to stop, within budget, do
// one unit of work" shape every stressor in this package follows, so
// each workload body only has to supply the unit of work itself.
func runLoop(args *registry.Args, unit func() error) registry.ExitCode {
	for {
		if args.Continue != nil && !args.Continue() {
			break
		}
		if args.Deadline(time.Now().UnixNano()) {
			break
		}
		if args.MaxOps > 0 && *args.CI.Counter >= args.MaxOps {
			break
		}
		if err := unit(); err != nil {
			*args.CI.RunOK = false
			*args.CI.CounterReady = true
			return registry.NotSuccess
		}
		args.CI.Add(1)
	}
	*args.CI.RunOK = true
	*args.CI.CounterReady = true
	return registry.Success
}
