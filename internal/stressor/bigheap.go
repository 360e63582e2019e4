package stressor

import (
	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// BigHeap implements a growing allocation workload (§3 class
// pathological): it keeps every chunk it allocates until the total
// reaches maxBytes (256 MiB by default), then drops them all and grows
// again, and releases them when Run returns. It is gated by the run-plan
// builder's pathological rule (§4.1 rule 6) and only runs at all when
// the operator opts in with --pathological.
type BigHeap struct {
	base
	growBytes  int
	maxBytes   int
	chunks     [][]byte
}

func NewBigHeap() *BigHeap {
	return &BigHeap{growBytes: 1 << 20, maxBytes: 256 << 20}
}

func (b *BigHeap) Supported(string) error { return nil }

func (b *BigHeap) Help() []registry.HelpLine {
	return []registry.HelpLine{{Opt: "--bigheap-growth N", Text: "bytes added to the heap per bogo-op"}}
}

func (b *BigHeap) Run(args *registry.Args) registry.ExitCode {
	total := 0
	code := runLoop(args, func() error {
		if total >= b.maxBytes {
			// Cap locally even in a pathological run so the sample
			// catalog never actually triggers an OOM kill in CI.
			b.chunks = b.chunks[:0]
			total = 0
		}
		chunk := make([]byte, b.growBytes)
		chunk[0] = 1
		chunk[len(chunk)-1] = 1
		b.chunks = append(b.chunks, chunk)
		total += b.growBytes
		return nil
	})
	b.chunks = nil
	return code
}
