package collab

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// CommandRunner abstracts external command execution for testability,
// grounded on the teacher's internal/collector.CommandRunner.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner is the default CommandRunner using os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// klogMarkers are substrings in dmesg output worth flagging after a run
// (§5 klog collaborator).
var klogMarkers = []string{"Out of memory", "segfault", "soft lockup", "hung_task", "Call Trace"}

// klogAdapter snapshots the dmesg line count before/after a run and
// counts lines matching klogMarkers that appeared during it.
type klogAdapter struct {
	runner CommandRunner

	mu          sync.Mutex
	beforeLines int
}

// NewKlog returns the kernel-log collaborator.
func NewKlog() Adapter { return &klogAdapter{runner: execRunner{}} }

func (k *klogAdapter) Name() string { return "klog" }

func (k *klogAdapter) Available() Availability {
	if _, err := exec.LookPath("dmesg"); err != nil {
		return Availability{Tier: 0, Reason: "dmesg not found in PATH"}
	}
	return Availability{Tier: 1}
}

func (k *klogAdapter) dmesg(ctx context.Context) ([]string, error) {
	out, err := k.runner.Run(ctx, "dmesg", "--ctime")
	if err != nil {
		return nil, fmt.Errorf("dmesg: %w", err)
	}
	return strings.Split(strings.TrimRight(string(out), "\n"), "\n"), nil
}

func (k *klogAdapter) Start(ctx context.Context) error {
	lines, err := k.dmesg(ctx)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.beforeLines = len(lines)
	k.mu.Unlock()
	return nil
}

func (k *klogAdapter) Stop(ctx context.Context) (map[string]float64, error) {
	lines, err := k.dmesg(ctx)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	before := k.beforeLines
	k.mu.Unlock()

	var newLines []string
	if len(lines) > before {
		newLines = lines[before:]
	}

	out := map[string]float64{"new_lines": float64(len(newLines))}
	for _, marker := range klogMarkers {
		count := 0.0
		for _, l := range newLines {
			if strings.Contains(l, marker) {
				count++
			}
		}
		if count > 0 {
			out["marker:"+marker] = count
		}
	}
	return out, nil
}
