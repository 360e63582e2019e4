package report

import (
	"testing"
	"time"

	"github.com/loadbreaker/loadbreaker/internal/metrics"
	"github.com/loadbreaker/loadbreaker/internal/registry"
)

func TestFromAggregatesPopulatesMetricBlock(t *testing.T) {
	aggs := []metrics.Aggregate{
		{
			Name:                "cpu",
			InstancesRequested:  2,
			InstancesCompleted:  2,
			CounterTotal:        300,
			WallMean:            5 * time.Second,
			UserTime:            2 * time.Second,
			SystemTime:          time.Second,
			MaxRSSKB:            4096,
			BogoOpsPerSecReal:   60,
			BogoOpsPerSecCPU:    100,
			CPUUsagePercent:     20,
			ChecksumOK:          true,
			Aux: []metrics.AuxAggregate{
				{Description: "Context Switches per sec", GeoMean: 4.0, Samples: 2},
			},
		},
	}
	summary := metrics.Summary{Overall: registry.Success, ByName: map[string]registry.ExitCode{"cpu": registry.Success}}

	r := FromAggregates("parallel", time.Unix(0, 0), aggs, summary)
	if len(r.Metrics) != 1 {
		t.Fatalf("len(Metrics) = %d, want 1", len(r.Metrics))
	}
	m := r.Metrics[0]
	if m.Stressor != "cpu" || m.BogoOps != 300 {
		t.Errorf("unexpected metric block: %+v", m)
	}
	if m.WallClockTime != 5 || m.CPUUsagePerInstance != 20 {
		t.Errorf("WallClockTime/CPUUsagePerInstance not wired from the aggregate: %+v", m)
	}
	if got := m.Aux["context-switches-per-sec"]; got != 4.0 {
		t.Errorf("Aux[context-switches-per-sec] = %f, want 4.0", got)
	}
	if r.Times.TotalBogoOps != 300 {
		t.Errorf("Times.TotalBogoOps = %d, want 300", r.Times.TotalBogoOps)
	}
	if r.Overall != registry.Success {
		t.Errorf("Overall = %v, want Success", r.Overall)
	}
}

func TestAuxKeySanitizesDescription(t *testing.T) {
	cases := map[string]string{
		"Context Switches/sec":                   "context-switchessec",
		"  Leading and trailing  ":                "--leading-and-trailing--",
		"ALLCAPS":                                 "allcaps",
		"a-very-long-description-that-goes-well-past-forty-characters-long": "a-very-long-description-that-goes-well-p",
	}
	for in, want := range cases {
		if got := auxKey(in); got != want {
			t.Errorf("auxKey(%q) = %q, want %q", in, got, want)
		}
	}
}
