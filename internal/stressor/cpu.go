package stressor

import (
	"math"

	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// CPU implements a floating-point-bound workload (§3 class cpu).
type CPU struct{ base }

func NewCPU() *CPU { return &CPU{} }

func (c *CPU) Supported(string) error { return nil }

func (c *CPU) Help() []registry.HelpLine {
	return []registry.HelpLine{{Opt: "--cpu-method", Text: "select CPU load method (default: all)"}}
}

// Run busy-loops a mixed integer/float workload: each bogo-op is one
// pass of a small Mandelbrot-style iteration, chosen because it is
// branchy enough to defeat trivial compiler folding while staying
// allocation-free (no GC pressure to confound the CPU class with the
// vm class).
func (c *CPU) Run(args *registry.Args) registry.ExitCode {
	return runLoop(args, func() error {
		var zr, zi float64
		const cr, ci = -0.743643887037151, 0.13182590420533
		for i := 0; i < 1000; i++ {
			zr2, zi2 := zr*zr, zi*zi
			if zr2+zi2 > 4 {
				break
			}
			zi = 2*zr*zi + ci
			zr = zr2 - zi2 + cr
		}
		_ = math.Sqrt(zr*zr + zi*zi)
		return nil
	})
}
