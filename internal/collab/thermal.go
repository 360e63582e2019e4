package collab

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// NewThermal samples every /sys/class/thermal/thermal_zone*/temp zone and
// reports the peak milli-degree-C seen during the run (§5 thermal
// collaborator: throttling detection for sustained CPU/memory load).
func NewThermal() Adapter {
	return &snapshotAdapter{
		name: "thermal",
		path: "/sys/class/thermal",
		peak: true,
		reasonFn: func() (bool, string) {
			zones, _ := filepath.Glob("/sys/class/thermal/thermal_zone*/temp")
			if len(zones) == 0 {
				return false, "no thermal zones exposed under /sys/class/thermal"
			}
			return true, ""
		},
		parse: func(_ []byte) (map[string]float64, error) {
			zones, err := filepath.Glob("/sys/class/thermal/thermal_zone*/temp")
			if err != nil {
				return nil, fmt.Errorf("glob thermal zones: %w", err)
			}
			sort.Strings(zones)
			out := map[string]float64{}
			for _, z := range zones {
				data, err := os.ReadFile(z)
				if err != nil {
					continue
				}
				v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
				if err != nil {
					continue
				}
				name := filepath.Base(filepath.Dir(z))
				out[name] = v
			}
			return out, nil
		},
	}
}
