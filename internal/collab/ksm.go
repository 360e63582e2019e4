package collab

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// NewKSM reports kernel same-page merging activity from
// /sys/kernel/mm/ksm/{pages_shared,pages_sharing,pages_unshared,pages_volatile}
// (§5 ksm collaborator: relevant to memory stressors that allocate many
// identical pages).
func NewKSM() Adapter {
	dir := "/sys/kernel/mm/ksm"
	files := []string{"pages_shared", "pages_sharing", "pages_unshared", "pages_volatile"}
	return &snapshotAdapter{
		name: "ksm",
		path: dir,
		parse: func(_ []byte) (map[string]float64, error) {
			out := map[string]float64{}
			for _, f := range files {
				data, err := os.ReadFile(filepath.Join(dir, f))
				if err != nil {
					continue
				}
				v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
				if err != nil {
					return nil, fmt.Errorf("parse %s: %w", f, err)
				}
				out[f] = v
			}
			return out, nil
		},
	}
}
