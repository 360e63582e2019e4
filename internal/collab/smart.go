package collab

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// smartDevice is the block device smartctl inspects. A fixed default
// keeps this adapter self-contained; a future CLI flag can override it.
const smartDevice = "/dev/sda"

// smartAdapter reads the device's reallocated-sector and power-on-hours
// attributes via smartctl before/after an hdd/io-class run (§5 smart
// collaborator: distinguishes "the disk is wearing out" from "the
// stressor is just slow").
type smartAdapter struct {
	runner CommandRunner

	mu     sync.Mutex
	before map[string]float64
}

// NewSMART returns the SMART-health collaborator.
func NewSMART() Adapter { return &smartAdapter{runner: execRunner{}} }

func (s *smartAdapter) Name() string { return "smart" }

func (s *smartAdapter) Available() Availability {
	if _, err := exec.LookPath("smartctl"); err != nil {
		return Availability{Tier: 0, Reason: "smartctl not found in PATH"}
	}
	return Availability{Tier: 1}
}

// smartAttrs maps the smartctl -A attribute names this adapter tracks to
// the report key they're folded under.
var smartAttrs = map[string]string{
	"Reallocated_Sector_Ct": "reallocated_sectors",
	"Power_On_Hours":        "power_on_hours",
	"Wear_Leveling_Count":   "wear_leveling_count",
}

func (s *smartAdapter) sample(ctx context.Context) (map[string]float64, error) {
	out, err := s.runner.Run(ctx, "smartctl", "-A", smartDevice)
	if err != nil {
		return nil, fmt.Errorf("smartctl -A %s: %w", smartDevice, err)
	}
	vals := map[string]float64{}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		// smartctl -A attribute lines: ID# ATTRIBUTE_NAME FLAG VALUE WORST
		// THRESH TYPE UPDATED WHEN_FAILED RAW_VALUE
		if len(fields) < 10 {
			continue
		}
		key, ok := smartAttrs[fields[1]]
		if !ok {
			continue
		}
		if v, err := strconv.ParseFloat(fields[9], 64); err == nil {
			vals[key] = v
		}
	}
	return vals, nil
}

func (s *smartAdapter) Start(ctx context.Context) error {
	vals, err := s.sample(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.before = vals
	s.mu.Unlock()
	return nil
}

func (s *smartAdapter) Stop(ctx context.Context) (map[string]float64, error) {
	after, err := s.sample(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	before := s.before
	s.mu.Unlock()

	out := make(map[string]float64, len(after))
	for k, v := range after {
		out[k] = v - before[k]
	}
	return out, nil
}
