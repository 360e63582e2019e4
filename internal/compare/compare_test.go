package compare

import (
	"testing"
	"time"

	"github.com/loadbreaker/loadbreaker/internal/report"
)

func TestCompareFlagsThroughputRegression(t *testing.T) {
	base := &report.Report{
		RunInfo: report.RunInfo{StartedAt: time.Unix(0, 0)},
		Metrics: []report.Metric{{Stressor: "cpu", BogoOpsPerSecondRealTime: 1000}},
	}
	cur := &report.Report{
		RunInfo: report.RunInfo{StartedAt: time.Unix(100, 0)},
		Metrics: []report.Metric{{Stressor: "cpu", BogoOpsPerSecondRealTime: 500}},
	}
	d := Compare(base, cur)
	if d.Regressions != 1 {
		t.Fatalf("Regressions = %d, want 1", d.Regressions)
	}
	if d.Changes[0].Direction != "regression" {
		t.Errorf("direction = %s, want regression", d.Changes[0].Direction)
	}
}

func TestCompareFlagsThroughputImprovement(t *testing.T) {
	base := &report.Report{Metrics: []report.Metric{{Stressor: "cpu", BogoOpsPerSecondRealTime: 500}}}
	cur := &report.Report{Metrics: []report.Metric{{Stressor: "cpu", BogoOpsPerSecondRealTime: 1000}}}
	d := Compare(base, cur)
	if d.Improvements != 1 {
		t.Fatalf("Improvements = %d, want 1", d.Improvements)
	}
}

func TestCompareReportsMissingStressors(t *testing.T) {
	base := &report.Report{Metrics: []report.Metric{{Stressor: "cpu"}, {Stressor: "vm"}}}
	cur := &report.Report{Metrics: []report.Metric{{Stressor: "cpu"}}}
	d := Compare(base, cur)
	if len(d.Missing) != 1 || d.Missing[0] != "vm" {
		t.Errorf("Missing = %v, want [vm]", d.Missing)
	}
}

func TestCompareIgnoresNegligibleChanges(t *testing.T) {
	base := &report.Report{Metrics: []report.Metric{{Stressor: "cpu", BogoOpsPerSecondRealTime: 1000}}}
	cur := &report.Report{Metrics: []report.Metric{{Stressor: "cpu", BogoOpsPerSecondRealTime: 1002}}}
	d := Compare(base, cur)
	for _, c := range d.Changes {
		if c.Metric == "bogo-ops-per-second-real-time" {
			t.Errorf("negligible 0.2%% change should have been skipped, got %+v", c)
		}
	}
}
