package collab

import (
	"strconv"
	"strings"
)

// NewThrash reports memory pressure via the PSI "some" and "full" avg10
// figures in /proc/pressure/memory (§5 thrash collaborator: "detect when the
// workload is spending more time thrashing than computing"). Unlike the
// vmstat collaborator's cumulative counters, this is a gauge, so the
// peak observed during the run is what matters, not the delta.
func NewThrash() Adapter {
	return &snapshotAdapter{
		name: "thrash",
		path: "/proc/pressure/memory",
		peak: true,
		parse: func(data []byte) (map[string]float64, error) {
			out := map[string]float64{}
			for _, line := range strings.Split(string(data), "\n") {
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}
				kind := fields[0] // "some" or "full"
				for _, f := range fields[1:] {
					k, v, ok := strings.Cut(f, "=")
					if !ok || k != "avg10" {
						continue
					}
					if fv, err := strconv.ParseFloat(v, 64); err == nil {
						out[kind+"_avg10"] = fv
					}
				}
			}
			return out, nil
		},
	}
}
