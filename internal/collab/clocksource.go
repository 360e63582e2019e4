package collab

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// clocksourcePath is where the active timekeeping source is exposed.
const clocksourcePath = "/sys/devices/system/clocksource/clocksource0/current_clocksource"

// clocksourceAdapter watches for a clocksource change mid-run (§5
// clocksource collaborator: "a clocksource switch mid-run invalidates
// any wall-clock-derived throughput figures for that run"). This can't
// use snapshotAdapter's numeric delta model since the value is a name,
// not a number, so it tracks a simple changed/unchanged flag instead.
type clocksourceAdapter struct {
	mu     sync.Mutex
	before string
}

// NewClocksource returns the clocksource-stability collaborator.
func NewClocksource() Adapter { return &clocksourceAdapter{} }

func (c *clocksourceAdapter) Name() string { return "clocksource" }

func (c *clocksourceAdapter) Available() Availability {
	if _, err := os.Stat(clocksourcePath); err != nil {
		return Availability{Tier: 0, Reason: fmt.Sprintf("%s not present: %v", clocksourcePath, err)}
	}
	return Availability{Tier: 1}
}

func (c *clocksourceAdapter) read() (string, error) {
	data, err := os.ReadFile(clocksourcePath)
	if err != nil {
		return "", fmt.Errorf("read current clocksource: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *clocksourceAdapter) Start(ctx context.Context) error {
	v, err := c.read()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.before = v
	c.mu.Unlock()
	return nil
}

func (c *clocksourceAdapter) Stop(ctx context.Context) (map[string]float64, error) {
	after, err := c.read()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	before := c.before
	c.mu.Unlock()

	return map[string]float64{"changed": clocksourceChanged(before, after)}, nil
}

// clocksourceChanged is 1 when a recorded starting clocksource differs
// from the one read at Stop, else 0.
func clocksourceChanged(before, after string) float64 {
	if before != after && before != "" {
		return 1.0
	}
	return 0.0
}
