// loadbreaker is a single-binary stress-testing harness: it drives a
// fleet of worker processes through a catalog of resource stressors,
// tracking their throughput and integrity through a shared-memory plane.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loadbreaker/loadbreaker/internal/collab"
	"github.com/loadbreaker/loadbreaker/internal/compare"
	"github.com/loadbreaker/loadbreaker/internal/fleet"
	"github.com/loadbreaker/loadbreaker/internal/jobfile"
	"github.com/loadbreaker/loadbreaker/internal/metrics"
	"github.com/loadbreaker/loadbreaker/internal/progress"
	"github.com/loadbreaker/loadbreaker/internal/registry"
	"github.com/loadbreaker/loadbreaker/internal/report"
	"github.com/loadbreaker/loadbreaker/internal/runplan"
	"github.com/loadbreaker/loadbreaker/internal/shared"
	"github.com/loadbreaker/loadbreaker/internal/sigplane"
	"github.com/loadbreaker/loadbreaker/internal/stressor"
)

var version = "0.1.0"

func main() {
	if isWorker() {
		os.Exit(int(runWorker()))
	}

	root := &cobra.Command{
		Use:     "loadbreaker",
		Short:   "Resource stress-testing harness",
		Version: version,
		Long: `loadbreaker drives CPU, memory, I/O, pipe and socket stressors
through a shared-memory fleet of worker processes, verifying each
worker's reported throughput against an independently computed
checksum and reporting everything as a single YAML document.`,
	}
	root.AddCommand(newRunCmd(), newListCmd(), newCompareCmd())

	// runExitCode carries the run subcommand's summary exit code out of
	// its RunE so os.Exit happens here, after every deferred cleanup in
	// doRun (plane unmap, signal watcher stop, metrics server shutdown)
	// has already run instead of being skipped.
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "loadbreaker:", err)
		os.Exit(int(registry.Failure))
	}
	os.Exit(int(runExitCode))
}

var runExitCode registry.ExitCode = registry.Success

type runFlags struct {
	jobPath           string
	mode              string
	with              []string
	exclude           []string
	classFilter       string
	instances         int32
	explicit          []string // "name:count" pairs
	timeout           string
	seed              int64
	allowPathological bool
	abort             bool
	quiet             bool
	output            string
	scratchDir        string
	collaborators     []string
	metricsAddr       string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a stress-testing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRun(f)
		},
	}
	cmd.Flags().StringVar(&f.jobPath, "job", "", "load a job file (YAML) instead of flags")
	cmd.Flags().StringVar(&f.mode, "mode", "explicit", "selection mode: explicit, all, sequential, permute, random")
	cmd.Flags().StringSliceVar(&f.with, "with", nil, "restrict all/sequential/permute to these stressor names")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "exclude these stressor names")
	cmd.Flags().StringVar(&f.classFilter, "class", "", "restrict to a stressor class (cpu, memory, io, ...)")
	cmd.Flags().Int32VarP(&f.instances, "instances", "n", 0, "instance count for all/sequential/permute/random (0=configured CPUs, -1=online CPUs)")
	cmd.Flags().StringSliceVar(&f.explicit, "stressor", nil, "explicit stressor:count pair, repeatable (explicit mode)")
	cmd.Flags().StringVarP(&f.timeout, "timeout", "t", "", "overall run deadline, e.g. 60s, 5m")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed (random mode)")
	cmd.Flags().BoolVar(&f.allowPathological, "pathological", false, "allow stressors marked pathological")
	cmd.Flags().BoolVar(&f.abort, "abort", false, "stop a sequential run as soon as one entry fails")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress progress output")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "report output path (- for stdout)")
	cmd.Flags().StringVar(&f.scratchDir, "scratch-dir", "", "working directory for filesystem stressors (default: system temp dir)")
	cmd.Flags().StringSliceVar(&f.collaborators, "with-collab", nil, "external collaborator adapters to enable (perf, thermal, vmstat, ...)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus gauges on this address while the run is in progress; values are set at the start and end of the run (disabled by default)")
	return cmd
}

func parseMode(s string) (runplan.Mode, error) {
	switch strings.ToLower(s) {
	case "", "explicit":
		return runplan.ModeExplicitOnly, nil
	case "all":
		return runplan.ModeAll, nil
	case "sequential":
		return runplan.ModeSequential, nil
	case "permute":
		return runplan.ModePermute, nil
	case "random":
		return runplan.ModeRandom, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func buildInputs(f runFlags) (runplan.Inputs, error) {
	in := runplan.Inputs{
		WithNames:         f.with,
		ExcludeNames:      f.exclude,
		InstanceCount:     f.instances,
		AllowPathological: f.allowPathological,
		Seed:              f.seed,
	}
	mode, err := parseMode(f.mode)
	if err != nil {
		return in, err
	}
	in.Mode = mode

	if f.classFilter != "" {
		class, ok := registry.ParseClass(f.classFilter)
		if !ok {
			return in, fmt.Errorf("unknown class %q", f.classFilter)
		}
		in.ClassFilter = class
		in.HasClassFilter = true
	}

	if len(f.explicit) > 0 {
		in.Explicit = map[string]int32{}
		for _, pair := range f.explicit {
			name, countStr, ok := strings.Cut(pair, ":")
			if !ok {
				return in, fmt.Errorf("--stressor must be name:count, got %q", pair)
			}
			count, err := strconv.ParseInt(countStr, 10, 32)
			if err != nil {
				return in, fmt.Errorf("--stressor %q: %w", pair, err)
			}
			in.Explicit[name] = int32(count)
		}
	}
	return in, nil
}

func applyJobFile(f *runFlags, j *jobfile.Job) {
	if j.Mode != "" {
		f.mode = j.Mode
	}
	if j.Timeout != "" {
		f.timeout = j.Timeout
	}
	if j.InstanceCount != 0 {
		f.instances = j.InstanceCount
	}
	f.with = append(f.with, j.With...)
	f.exclude = append(f.exclude, j.Exclude...)
	if len(j.Class) > 0 {
		f.classFilter = j.Class[0]
	}
	f.allowPathological = f.allowPathological || j.AllowPathological
	f.abort = f.abort || j.Abort
	f.quiet = f.quiet || j.Quiet
	if j.Seed != 0 {
		f.seed = j.Seed
	}
	if j.Output != "" {
		f.output = j.Output
	}
	for _, s := range j.Stressors {
		f.explicit = append(f.explicit, fmt.Sprintf("%s:%d", s.Name, s.Instances))
	}
}

func doRun(f runFlags) error {
	if f.jobPath != "" {
		j, err := jobfile.Load(f.jobPath)
		if err != nil {
			return err
		}
		applyJobFile(&f, j)
	}

	in, err := buildInputs(f)
	if err != nil {
		return err
	}

	scratchDir := f.scratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	cat := stressor.Catalog(scratchDir)

	configuredCPUs := int32(len(fleet.OnlineCPUs()))
	if configuredCPUs == 0 {
		configuredCPUs = 1
	}
	onlineCPUs := configuredCPUs

	plan, err := runplan.Build(cat, in, configuredCPUs, onlineCPUs)
	if err != nil {
		return err
	}

	totalSlots := 0
	for _, e := range plan.Entries {
		if e.IgnoreRun == runplan.NotIgnored {
			totalSlots += int(e.NumInstances)
		}
	}
	if totalSlots == 0 {
		return fmt.Errorf("run plan selected no runnable instances")
	}

	plane, err := shared.New(totalSlots)
	if err != nil {
		return fmt.Errorf("create shared plane: %w", err)
	}
	defer plane.Close()

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable path: %w", err)
	}

	sched := fleet.NewScheduler(plane, sigplane.New(), exePath)
	sched.ScratchDir = scratchDir
	sched.Abort = f.abort
	if f.timeout != "" {
		d, err := time.ParseDuration(f.timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
		sched.Deadline = time.Now().Add(d)
	}
	sched.Sig.Start(int(registry.Signaled))
	defer sched.Sig.Stop()

	collabRegistry := collab.NewRegistry()
	active, unavailable := collabRegistry.Select(f.collaborators)
	prog := progress.New(!f.quiet)
	for name, reason := range unavailable {
		prog.Log("collaborator %s unavailable: %s", name, reason)
	}

	ctx := context.Background()
	for _, a := range active {
		if err := a.Start(ctx); err != nil {
			prog.Log("collaborator %s failed to start: %v", a.Name(), err)
		}
	}

	var promExp *collab.PromExporter
	if f.metricsAddr != "" {
		promExp = collab.NewPromExporter()
		promExp.Set(0, totalSlots)
		errCh := promExp.Start(f.metricsAddr)
		go func() {
			if err := <-errCh; err != nil {
				prog.Log("metrics exporter failed: %v", err)
			}
		}()
		defer promExp.Stop(ctx)
	}

	started := time.Now()
	prog.Log("starting run: mode=%s instances=%d", f.mode, totalSlots)

	var outcome *fleet.Outcome
	switch in.Mode {
	case runplan.ModeSequential:
		outcome, err = sched.RunSequential(ctx, plan)
	case runplan.ModePermute:
		outcome, err = sched.RunPermute(ctx, plan)
	default:
		outcome, err = sched.RunParallel(ctx, plan)
	}
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	collabResults := map[string]map[string]float64{}
	for _, a := range active {
		vals, err := a.Stop(ctx)
		if err != nil {
			prog.Log("collaborator %s failed to stop: %v", a.Name(), err)
			continue
		}
		collabResults[a.Name()] = vals
	}
	for name, vals := range collabResults {
		prog.Log("collaborator %s: %v", name, vals)
	}

	aggs := make([]metrics.Aggregate, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		if e.IgnoreRun != runplan.NotIgnored {
			continue
		}
		statsSlice := plane.Stats[e.SlotBase : e.SlotBase+int(e.NumInstances)]
		var cksumSlice []shared.ChecksumRecord
		if len(plane.Checksums) >= e.SlotBase+int(e.NumInstances) {
			cksumSlice = plane.Checksums[e.SlotBase : e.SlotBase+int(e.NumInstances)]
		}
		aggs = append(aggs, metrics.Compute(e.Descriptor.Name, int(e.NumInstances), statsSlice, cksumSlice))
	}

	if promExp != nil {
		var bogoTotal uint64
		for _, a := range aggs {
			bogoTotal += a.CounterTotal
		}
		promExp.Set(bogoTotal, totalSlots)
	}

	summary := metrics.NewSummary(outcome.ByName)
	prog.Log("run complete: overall exit code %d", summary.Overall)

	rep := report.FromAggregates(f.mode, started, aggs, summary)
	if err := report.Write(rep, f.output); err != nil {
		return err
	}

	runExitCode = summary.Overall
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered stressor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := stressor.Catalog(os.TempDir())
			names := cat.Names()
			sort.Strings(names)
			for _, name := range names {
				d, _ := cat.Lookup(name)
				fmt.Printf("%-12s %s\n", d.Name, d.Class.String())
			}
			return nil
		},
	}
}

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <baseline.yaml> <current.yaml>",
		Short: "Compare two reports and highlight regressions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := report.Load(args[0])
			if err != nil {
				return err
			}
			cur, err := report.Load(args[1])
			if err != nil {
				return err
			}
			diff := compare.Compare(base, cur)
			fmt.Printf("regressions: %d, improvements: %d\n", diff.Regressions, diff.Improvements)
			for _, c := range diff.Changes {
				fmt.Printf("  [%s] %s.%s: %.3f -> %.3f (%+.1f%%, %s)\n",
					c.Significance, c.Stressor, c.Metric, c.OldValue, c.NewValue, c.DeltaPct, c.Direction)
			}
			for _, name := range diff.Missing {
				fmt.Printf("  (missing from one report: %s)\n", name)
			}
			return nil
		},
	}
}
