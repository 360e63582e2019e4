// Package report serialises a completed run as YAML (§6.4), adapted from
// the teacher's internal/output.WriteJSON -- same create-or-stdout shape,
// gopkg.in/yaml.v3 in place of encoding/json per the domain stack's
// choice of a human-editable job/report format.
package report

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loadbreaker/loadbreaker/internal/metrics"
	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// RunInfo describes the run itself (§6.4 "emit runinfo").
type RunInfo struct {
	Tool      string    `yaml:"tool"`
	Version   string    `yaml:"version"`
	Hostname  string    `yaml:"hostname"`
	StartedAt time.Time `yaml:"started-at"`
	Duration  string    `yaml:"duration"`
	Arch      string    `yaml:"arch"`
	CPUs      int       `yaml:"cpus"`
	Mode      string    `yaml:"mode"`
}

// Metric is one run-plan entry's block in the report's `metrics:` list
// (§6.4). Field names are the literal dashed keys spec.md mandates; Aux
// carries one additional key per auxiliary metric the entry reported,
// inlined into the same YAML mapping.
type Metric struct {
	Stressor                   string             `yaml:"stressor"`
	ExitCode                   registry.ExitCode  `yaml:"exit-code"`
	InstancesRequested         int                `yaml:"instances-requested"`
	InstancesCompleted         int                `yaml:"instances-completed"`
	BogoOps                    uint64             `yaml:"bogo-ops"`
	BogoOpsPerSecondUsrSysTime float64            `yaml:"bogo-ops-per-second-usr-sys-time"`
	BogoOpsPerSecondRealTime   float64            `yaml:"bogo-ops-per-second-real-time"`
	WallClockTime              float64            `yaml:"wall-clock-time"`
	UserTime                   float64            `yaml:"user-time"`
	SystemTime                 float64            `yaml:"system-time"`
	CPUUsagePerInstance        float64            `yaml:"cpu-usage-per-instance"`
	MaxRSS                     int64              `yaml:"max-rss"`
	ChecksumOK                 bool               `yaml:"checksum-ok"`
	Suspicious                 bool               `yaml:"suspicious,omitempty"`
	Aux                        map[string]float64 `yaml:",inline"`
}

// Times is the report's overall-totals block (§6.4 "times: block with
// overall totals and 1/5/15-minute load averages").
type Times struct {
	TotalBogoOps    uint64  `yaml:"total-bogo-ops"`
	TotalUserTime   float64 `yaml:"total-user-time"`
	TotalSystemTime float64 `yaml:"total-system-time"`
	WallClockTime   float64 `yaml:"wall-clock-time"`
	LoadAverage1m   float64 `yaml:"load-average-1m"`
	LoadAverage5m   float64 `yaml:"load-average-5m"`
	LoadAverage15m  float64 `yaml:"load-average-15m"`
}

// Report is the top-level document written by `loadbreaker run` (§6.4).
type Report struct {
	RunInfo RunInfo           `yaml:"runinfo"`
	Metrics []Metric          `yaml:"metrics"`
	Times   Times             `yaml:"times"`
	Overall registry.ExitCode `yaml:"overall-exit-code"`
}

// FromAggregates assembles a Report from the metrics engine's
// per-entry aggregates and the fleet scheduler's exit-code summary.
func FromAggregates(mode string, started time.Time, aggs []metrics.Aggregate, summary metrics.Summary) *Report {
	hostname, _ := os.Hostname()
	r := &Report{
		RunInfo: RunInfo{
			Tool:      "loadbreaker",
			Hostname:  hostname,
			StartedAt: started,
			Duration:  time.Since(started).Round(time.Millisecond).String(),
			Arch:      runtime.GOARCH,
			CPUs:      runtime.NumCPU(),
			Mode:      mode,
		},
		Overall: summary.Overall,
	}

	var totalOps uint64
	var totalUser, totalSys float64
	for _, a := range aggs {
		m := Metric{
			Stressor:                   a.Name,
			ExitCode:                   summary.ByName[a.Name],
			InstancesRequested:         a.InstancesRequested,
			InstancesCompleted:         a.InstancesCompleted,
			BogoOps:                    a.CounterTotal,
			BogoOpsPerSecondUsrSysTime: a.BogoOpsPerSecCPU,
			BogoOpsPerSecondRealTime:   a.BogoOpsPerSecReal,
			WallClockTime:              a.WallMean.Seconds(),
			UserTime:                   a.UserTime.Seconds(),
			SystemTime:                 a.SystemTime.Seconds(),
			CPUUsagePerInstance:        a.CPUUsagePercent,
			MaxRSS:                     a.MaxRSSKB,
			ChecksumOK:                 a.ChecksumOK,
			Suspicious:                 a.Suspicious,
		}
		for _, aux := range a.Aux {
			if m.Aux == nil {
				m.Aux = map[string]float64{}
			}
			m.Aux[auxKey(aux.Description)] = aux.GeoMean
		}
		r.Metrics = append(r.Metrics, m)

		totalOps += a.CounterTotal
		totalUser += a.UserTime.Seconds()
		totalSys += a.SystemTime.Seconds()
	}

	load1, load5, load15 := readLoadAverage()
	r.Times = Times{
		TotalBogoOps:    totalOps,
		TotalUserTime:   totalUser,
		TotalSystemTime: totalSys,
		WallClockTime:   time.Since(started).Seconds(),
		LoadAverage1m:   load1,
		LoadAverage5m:   load5,
		LoadAverage15m:  load15,
	}
	return r
}

// auxKey sanitises an auxiliary metric's description into a YAML key
// (§6.4: "lowercased with spaces→- and non-alphanumerics stripped,
// truncated to 40 chars").
func auxKey(desc string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(desc) {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	key := b.String()
	if len(key) > 40 {
		key = key[:40]
	}
	return key
}

// readLoadAverage reads the 1/5/15-minute load averages from /proc/loadavg,
// mirroring the procfs-reading idiom used elsewhere in internal/metrics and
// internal/collab. It returns zeros when the file is unavailable, e.g. on a
// non-Linux host.
func readLoadAverage() (load1, load5, load15 float64) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	fmt.Sscanf(fields[0], "%f", &load1)
	fmt.Sscanf(fields[1], "%f", &load5)
	fmt.Sscanf(fields[2], "%f", &load15)
	return load1, load5, load15
}

// Write serialises r as YAML to path, or stdout when path is "" or "-".
func Write(r *Report, path string) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Load reads a previously written report back, used by `loadbreaker
// compare` (§6.4 "reports are diffable").
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
