package metrics

import "github.com/loadbreaker/loadbreaker/internal/registry"

// Summary is the run-wide exit status rollup (§6.3): the single exit code
// the process reports is the most severe code seen across every entry.
type Summary struct {
	Overall registry.ExitCode
	ByName  map[string]registry.ExitCode
}

// NewSummary folds a set of per-entry exit codes into one overall code
// using registry.MoreSevere, the same ordering the fleet scheduler
// already relies on.
func NewSummary(byName map[string]registry.ExitCode) Summary {
	s := Summary{Overall: registry.Success, ByName: byName}
	for _, code := range byName {
		if registry.MoreSevere(code, s.Overall) {
			s.Overall = code
		}
	}
	return s
}
