// Package progress reports run status to stderr, grounded on the
// teacher's internal/output.Progress.
package progress

import (
	"fmt"
	"os"
	"time"
)

// Progress prints elapsed-time-stamped status lines unless silenced by
// --quiet (§6.2).
type Progress struct {
	enabled bool
	start   time.Time
}

// New creates a Progress reporter. enabled=false corresponds to --quiet.
func New(enabled bool) *Progress {
	return &Progress{enabled: enabled, start: time.Now()}
}

// Log prints one status line to stderr if enabled.
func (p *Progress) Log(format string, args ...interface{}) {
	if !p.enabled {
		return
	}
	elapsed := time.Since(p.start).Round(time.Millisecond)
	fmt.Fprintf(os.Stderr, "[%s] %s\n", elapsed, fmt.Sprintf(format, args...))
}
