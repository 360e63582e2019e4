package main

import (
	"os"
	"strconv"
	"time"

	"github.com/loadbreaker/loadbreaker/internal/fleet"
	"github.com/loadbreaker/loadbreaker/internal/metrics"
	"github.com/loadbreaker/loadbreaker/internal/registry"
	"github.com/loadbreaker/loadbreaker/internal/shared"
	"github.com/loadbreaker/loadbreaker/internal/sigplane"
	"github.com/loadbreaker/loadbreaker/internal/stressor"
)

// isWorker reports whether this process was re-exec'd as a fleet worker
// (§4.4 step a).
func isWorker() bool {
	return os.Getenv(fleet.EnvWorkerMode) == "1"
}

func envInt(name string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return fallback
	}
	return v
}

func envInt64(name string, fallback int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(name), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envUint64(name string, fallback uint64) uint64 {
	v, err := strconv.ParseUint(os.Getenv(name), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

// runWorker is the entry point for a re-exec'd worker process (§4.4
// steps a-h): attach the inherited shared plane, run exactly one
// stressor instance to completion or shutdown, write its final stats
// and checksum, and return the exit code the parent will observe as
// this process's exit status.
func runWorker() registry.ExitCode {
	name := os.Getenv(fleet.EnvStressor)
	instance := int32(envInt(fleet.EnvInstance, 0))
	numInstances := int32(envInt(fleet.EnvNumInst, 1))
	slot := envInt(fleet.EnvSlot, 0)
	maxOps := envUint64(fleet.EnvMaxOps, 0)
	deadline := envInt64(fleet.EnvDeadline, 0)
	planeN := envInt(fleet.EnvPlaneN, 1)
	statsSize := envInt(fleet.EnvStatsSize, 0)
	checksumSize := envInt(fleet.EnvChecksumSz, 0)
	scratchDir := os.Getenv(fleet.EnvScratchDir)
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}

	plane, err := shared.Attach(planeN, statsSize, checksumSize)
	if err != nil {
		os.Stderr.WriteString("loadbreaker: worker attach plane: " + err.Error() + "\n")
		return registry.Failure
	}
	defer plane.Close()

	if slot < 0 || slot >= len(plane.Stats) {
		os.Stderr.WriteString("loadbreaker: worker slot out of range\n")
		return registry.Failure
	}
	stats := &plane.Stats[slot]
	cksum := &plane.Checksums[slot]

	stats.PID = int32(os.Getpid())
	stats.StartUnixNano = time.Now().UnixNano()

	sentinels, err := shared.NewSentinels(plane.Header)
	if err != nil {
		os.Stderr.WriteString("loadbreaker: worker sentinels: " + err.Error() + "\n")
		return registry.Failure
	}
	defer sentinels.Close()

	cat := stressor.Catalog(scratchDir)
	desc, ok := cat.Lookup(name)
	if !ok {
		return registry.NotImplemented
	}
	mod := desc.Module
	if err := mod.Supported(name); err != nil {
		return registry.NotImplemented
	}
	mod.SetDefault()
	if maxOps > 0 {
		mod.SetLimit(maxOps)
	}
	if err := mod.Init(); err != nil {
		return registry.NoResource
	}
	defer mod.Deinit()

	sig := sigplane.New()
	sig.Start(int(registry.Signaled))
	defer sig.Stop()

	var runOK, counterReady, forceKilled bool
	var auxMetrics []registry.AuxMetric
	ci := &registry.CounterInfo{
		Counter:      &stats.CounterTotal,
		RunOK:        &runOK,
		CounterReady: &counterReady,
		ForceKilled:  &forceKilled,
	}
	args := &registry.Args{
		CI:              ci,
		Name:            name,
		MaxOps:          maxOps,
		Instance:        instance,
		NumInstances:    numInstances,
		PID:             int(stats.PID),
		PageSize:        plane.PageSize,
		TimeEndUnixNano: deadline,
		Sentinels:       registry.Sentinels{None: sentinels.None, RO: sentinels.RO, WO: sentinels.WO},
		Metrics:         &auxMetrics,
		Continue:        sig.Continue,
	}

	exitCode := mod.Run(args)

	stats.Completed = 1
	if runOK {
		stats.RunOK = 1
	}
	if counterReady {
		stats.CounterReady = 1
	}
	if forceKilled {
		stats.ForceKilled = 1
	}
	if sig.CaughtSigint() {
		stats.Signalled = 1
	}
	stats.DurationNano = time.Now().UnixNano() - stats.StartUnixNano
	stats.DurTotalNano = stats.DurationNano

	utime, stime := metrics.SelfCPUTimes()
	stats.UtimeNano, stats.StimeNano = utime, stime
	stats.UtimeTotalNano, stats.StimeTotalNano = utime, stime

	stats.AuxCount = int32(len(auxMetrics))
	if stats.AuxCount > shared.MaxAuxMetrics {
		stats.AuxCount = shared.MaxAuxMetrics
	}
	for i := 0; i < int(stats.AuxCount); i++ {
		stats.Aux[i].SetDesc(auxMetrics[i].Description)
		stats.Aux[i].Value = auxMetrics[i].Value
	}

	metrics.Finalize(stats, cksum)
	return exitCode
}
