package collab

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// tracingDirs are tried in order -- the debugfs mount point is the
// traditional location, tracefs is the modern default.
var tracingDirs = []string{"/sys/kernel/tracing", "/sys/kernel/debug/tracing"}

func findTracingDir() string {
	for _, d := range tracingDirs {
		if _, err := os.Stat(filepath.Join(d, "per_cpu")); err == nil {
			return d
		}
	}
	return ""
}

// NewFtrace sums the ftrace ring buffer's "overrun" and "dropped events"
// counters across every CPU (§5 ftrace collaborator: a nonzero overrun means events were
// dropped before the harness could account for them, which bears
// directly on how much to trust a run's interrupt/scheduling figures).
func NewFtrace() Adapter {
	dir := findTracingDir()
	return &snapshotAdapter{
		name: "ftrace",
		path: dir,
		reasonFn: func() (bool, string) {
			if dir == "" {
				return false, "no tracefs/debugfs tracing mount found"
			}
			return true, ""
		},
		parse: func(_ []byte) (map[string]float64, error) {
			statsFiles, err := filepath.Glob(filepath.Join(dir, "per_cpu", "cpu*", "stats"))
			if err != nil {
				return nil, fmt.Errorf("glob per-cpu trace stats: %w", err)
			}
			out := map[string]float64{}
			for _, f := range statsFiles {
				data, err := os.ReadFile(f)
				if err != nil {
					continue
				}
				for _, line := range strings.Split(string(data), "\n") {
					k, v, ok := strings.Cut(line, ":")
					if !ok {
						continue
					}
					k = strings.TrimSpace(k)
					if k != "overrun" && k != "dropped events" {
						continue
					}
					if fv, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
						out[k] += fv
					}
				}
			}
			return out, nil
		},
	}
}
