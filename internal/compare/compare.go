// Package compare diffs two loadbreaker reports and highlights
// regressions/improvements, adapted from the teacher's internal/diff
// (same addChange significance/direction classification, generalised
// from USE-metric resources to bogo-ops throughput per stressor).
package compare

import (
	"math"

	"github.com/loadbreaker/loadbreaker/internal/report"
)

// MetricChange is one metric's delta between a baseline and current run.
type MetricChange struct {
	Stressor     string  `yaml:"stressor"`
	Metric       string  `yaml:"metric"`
	OldValue     float64 `yaml:"old_value"`
	NewValue     float64 `yaml:"new_value"`
	Delta        float64 `yaml:"delta"`
	DeltaPct     float64 `yaml:"delta_pct"`
	Direction    string  `yaml:"direction"`    // regression, improvement, unchanged
	Significance string  `yaml:"significance"` // high, medium, low
}

// Diff is the comparison between two reports.
type Diff struct {
	BaselineStartedAt string         `yaml:"baseline_started_at"`
	CurrentStartedAt  string         `yaml:"current_started_at"`
	Changes           []MetricChange `yaml:"changes"`
	Regressions       int            `yaml:"regressions"`
	Improvements      int            `yaml:"improvements"`
	Missing           []string       `yaml:"missing,omitempty"` // stressors present in only one report
}

// negligibleDeltaPct mirrors the teacher's skip-negligible-changes
// threshold; addChange falls back to a 0.1 absolute-delta floor when the
// baseline value is zero and no percentage exists.
const (
	negligibleDeltaPct = 1.0
	significantPct     = 5.0
	highSignificance   = 50.0
	mediumSignificance = 20.0
)

// Compare reports per-stressor throughput and resource deltas. Higher
// bogo-ops/sec and lower user/system time and RSS are both treated as
// improvements (§6.4 "compare subcommand highlights regressions").
func Compare(baseline, current *report.Report) *Diff {
	d := &Diff{
		BaselineStartedAt: baseline.RunInfo.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		CurrentStartedAt:  current.RunInfo.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	baseByName := map[string]report.Metric{}
	for _, m := range baseline.Metrics {
		baseByName[m.Stressor] = m
	}
	curByName := map[string]report.Metric{}
	for _, m := range current.Metrics {
		curByName[m.Stressor] = m
	}

	for name, cur := range curByName {
		base, ok := baseByName[name]
		if !ok {
			d.Missing = append(d.Missing, name)
			continue
		}
		addChange(d, name, "bogo-ops-per-second-real-time", base.BogoOpsPerSecondRealTime, cur.BogoOpsPerSecondRealTime, false)
		addChange(d, name, "bogo-ops-per-second-usr-sys-time", base.BogoOpsPerSecondUsrSysTime, cur.BogoOpsPerSecondUsrSysTime, false)
		addChange(d, name, "user-time", base.UserTime, cur.UserTime, true)
		addChange(d, name, "system-time", base.SystemTime, cur.SystemTime, true)
		addChange(d, name, "max-rss", float64(base.MaxRSS), float64(cur.MaxRSS), true)
	}
	for name := range baseByName {
		if _, ok := curByName[name]; !ok {
			d.Missing = append(d.Missing, name)
		}
	}

	for _, c := range d.Changes {
		switch c.Direction {
		case "regression":
			d.Regressions++
		case "improvement":
			d.Improvements++
		}
	}
	return d
}

func addChange(d *Diff, stressor, metric string, oldVal, newVal float64, higherIsWorse bool) {
	delta := newVal - oldVal
	deltaPct := 0.0
	if oldVal != 0 {
		deltaPct = (delta / math.Abs(oldVal)) * 100
	}
	if oldVal != 0 && math.Abs(deltaPct) < negligibleDeltaPct {
		return
	}
	if oldVal == 0 && math.Abs(delta) < 0.1 {
		return
	}

	direction := "unchanged"
	if higherIsWorse {
		if deltaPct > significantPct {
			direction = "regression"
		} else if deltaPct < -significantPct {
			direction = "improvement"
		}
	} else {
		if deltaPct < -significantPct {
			direction = "regression"
		} else if deltaPct > significantPct {
			direction = "improvement"
		}
	}

	significance := "low"
	absPct := math.Abs(deltaPct)
	if absPct >= highSignificance {
		significance = "high"
	} else if absPct >= mediumSignificance {
		significance = "medium"
	}

	d.Changes = append(d.Changes, MetricChange{
		Stressor:     stressor,
		Metric:       metric,
		OldValue:     oldVal,
		NewValue:     newVal,
		Delta:        delta,
		DeltaPct:     deltaPct,
		Direction:    direction,
		Significance: significance,
	})
}
