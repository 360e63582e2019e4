package stressor

import (
	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// Pipe implements a message-passing workload over an OS pipe (§3 class
// pipe). Each instance is already a single process (the fleet scheduler
// provides the process-level parallelism §4.4), so the two ends here are
// two goroutines within that one process: Run writes one message per
// bogo-op and a reader goroutine drains the pipe; nothing is sent back.
// No second fork per instance is needed.
type Pipe struct {
	base
	msgBytes int
}

func NewPipe() *Pipe { return &Pipe{msgBytes: 512} }

func (p *Pipe) Supported(string) error { return nil }

func (p *Pipe) Help() []registry.HelpLine {
	return []registry.HelpLine{{Opt: "--pipe-bytes N", Text: "message size written per bogo-op"}}
}

func (p *Pipe) Run(args *registry.Args) registry.ExitCode {
	r, w, err := osPipe()
	if err != nil {
		*args.CI.RunOK = false
		*args.CI.CounterReady = true
		return registry.NotSuccess
	}
	defer r.Close()
	defer w.Close()

	msg := make([]byte, p.msgBytes)
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, p.msgBytes)
		for {
			if _, err := r.Read(buf); err != nil {
				return
			}
		}
	}()

	code := runLoop(args, func() error {
		_, err := w.Write(msg)
		return err
	})

	w.Close()
	<-done
	return code
}
