package collab

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// oomScoreAdjPath is the harness's own oom_score_adj, not the workers'.
const oomScoreAdjPath = "/proc/self/oom_score_adj"

// harnessOOMAdj is how far the harness nudges its own oom_score_adj
// downward (§5 oom-avoid collaborator: "the harness process itself
// should be among the last the kernel's OOM killer considers, so a
// memory stressor's own excess is what gets reaped"). -500 is a
// conservative nudge, not the -1000 ("never kill me") extreme.
const harnessOOMAdj = -500

// oomAvoidAdapter biases the OOM killer away from the harness process
// for the duration of a run and reports whether the adjustment held.
type oomAvoidAdapter struct {
	applied bool
}

// NewOOMAvoid returns the oom-avoid collaborator.
func NewOOMAvoid() Adapter { return &oomAvoidAdapter{} }

func (o *oomAvoidAdapter) Name() string { return "oom-avoid" }

func (o *oomAvoidAdapter) Available() Availability {
	if _, err := os.Stat(oomScoreAdjPath); err != nil {
		return Availability{Tier: 0, Reason: fmt.Sprintf("%s not present: %v", oomScoreAdjPath, err)}
	}
	return Availability{Tier: 1}
}

func (o *oomAvoidAdapter) Start(ctx context.Context) error {
	err := os.WriteFile(oomScoreAdjPath, []byte(strconv.Itoa(harnessOOMAdj)), 0o644)
	o.applied = err == nil
	// Best-effort: an unprivileged process may be unable to lower its
	// own oom_score_adj below its prior value. That's reported, not fatal.
	return nil
}

func (o *oomAvoidAdapter) Stop(ctx context.Context) (map[string]float64, error) {
	data, err := os.ReadFile(oomScoreAdjPath)
	if err != nil {
		return nil, fmt.Errorf("read oom_score_adj: %w", err)
	}
	current, _ := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	applied := 0.0
	if o.applied {
		applied = 1.0
	}
	return map[string]float64{"applied": applied, "final_oom_score_adj": current}, nil
}
