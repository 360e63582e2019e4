package collab

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// NewCPUIdle sums each idle-state's usage counter across every CPU
// (§5 cpuidle collaborator: confirms a CPU stressor is actually keeping
// cores busy rather than idling between bursts).
func NewCPUIdle() Adapter {
	return &snapshotAdapter{
		name: "cpuidle",
		path: "/sys/devices/system/cpu/cpu0/cpuidle",
		parse: func(_ []byte) (map[string]float64, error) {
			usageFiles, err := filepath.Glob("/sys/devices/system/cpu/cpu*/cpuidle/state*/usage")
			if err != nil {
				return nil, err
			}
			out := map[string]float64{}
			for _, f := range usageFiles {
				data, err := os.ReadFile(f)
				if err != nil {
					continue
				}
				v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
				if err != nil {
					continue
				}
				// Aggregate by state index (state0, state1, ...) across CPUs;
				// the per-CPU distinction doesn't matter for this purpose.
				state := filepath.Base(filepath.Dir(f))
				out[state] += v
			}
			return out, nil
		},
	}
}
