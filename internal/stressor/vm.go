package stressor

import (
	"fmt"

	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// VM implements an anonymous-memory touch-and-release workload
// (§3 class vm/memory).
type VM struct {
	base
	chunkBytes int
}

func NewVM() *VM { return &VM{chunkBytes: 4 << 20} }

func (v *VM) Supported(string) error { return nil }

func (v *VM) Help() []registry.HelpLine {
	return []registry.HelpLine{{Opt: "--vm-bytes N", Text: "size of each allocate/touch/free chunk"}}
}

func (v *VM) OptSetters() []registry.OptSetter {
	return []registry.OptSetter{{
		Opt: "vm-bytes",
		Setter: func(arg string) error {
			var n int
			if _, err := fmt.Sscanf(arg, "%d", &n); err != nil || n <= 0 {
				return fmt.Errorf("invalid --vm-bytes %q", arg)
			}
			v.chunkBytes = n
			return nil
		},
	}}
}

// Run allocates a chunk, writes every page (to force real commit rather
// than lazy zero-pages), reads it back to defeat dead-store elimination,
// then drops it for the next bogo-op.
func (v *VM) Run(args *registry.Args) registry.ExitCode {
	const pageSize = 4096
	return runLoop(args, func() error {
		buf := make([]byte, v.chunkBytes)
		var sum byte
		for off := 0; off < len(buf); off += pageSize {
			buf[off] = byte(off)
			sum += buf[off]
		}
		if sum == 255 && len(buf) == 0 {
			return fmt.Errorf("unreachable")
		}
		return nil
	})
}
