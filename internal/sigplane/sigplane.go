// Package sigplane implements the signal plane (§4.3): the set of
// signal handlers shared by the parent and every worker process, the
// shutdown flag they flip, and the ALRM->KILL escalation policy.
//
// The original design's async-signal-safety rules (no allocation, no
// locks, no stdio, only write(2)/kill(2)/_exit(2)/preallocated
// formatters) describe constraints on code running inside a raw libc
// signal handler. Go never runs application code in that context: the
// runtime's own low-level handler intercepts the signal and hands it to
// a dedicated goroutine via signal.Notify, so everything in this
// package's Start loop already executes in ordinary goroutine context.
// The package still honours the spirit of the rule for the one path that
// matters most -- the USR2 system snapshot and the terminal-signal
// diagnostic -- by writing through syscall.Write rather than going
// through buffered stdio. Those lines are still formatted with
// fmt.Sprintf, and the parent's Broadcast takes the fleet's mutex.
package sigplane

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// UserAlarmInfo records the arrival of an ALRM signal, for diagnostics
// (§4.3). os/signal does not expose the sender, so PID and UID are those
// of the receiving process, not of the process that sent the signal.
type UserAlarmInfo struct {
	PID  int
	UID  int
	When time.Time
}

// Plane is one process's (parent or child) view of the signal handling
// contract. The same type and the same Start call are used on both
// sides (§4.3 "Signals handled (child): same handler set").
type Plane struct {
	continueFlag  int32 // atomic bool: 1 = keep going, 0 = shut down
	caughtSigint  int32 // atomic bool
	escalateCount int32 // atomic: number of ALRM broadcasts sent so far
	lastUserAlarm atomic.Value // *UserAlarmInfo

	// Broadcast is invoked whenever a shutdown-triggering signal arrives.
	// The parent's Broadcast signals every live child; a child's
	// Broadcast is typically a no-op (it has no children of its own).
	Broadcast func(sig syscall.Signal)

	sigCh chan os.Signal
	done  chan struct{}
}

// New creates a signal plane with the continue flag set (running).
func New() *Plane {
	p := &Plane{}
	atomic.StoreInt32(&p.continueFlag, 1)
	return p
}

// Continue reports whether the caller should keep running (polled by
// workers at their check-points).
func (p *Plane) Continue() bool {
	return atomic.LoadInt32(&p.continueFlag) != 0
}

// CaughtSigint reports whether INT or HUP has been observed.
func (p *Plane) CaughtSigint() bool {
	return atomic.LoadInt32(&p.caughtSigint) != 0
}

// LastUserAlarm returns the most recent user-originated ALRM, if any.
func (p *Plane) LastUserAlarm() *UserAlarmInfo {
	v, _ := p.lastUserAlarm.Load().(*UserAlarmInfo)
	return v
}

// escalationLimit is the number of ALRM broadcasts tolerated before
// escalating to KILL (§4.3 Escalation).
const escalationLimit = 5

// requestShutdown clears the continue flag and issues a broadcast,
// escalating to KILL once more than escalationLimit attempts have fired.
func (p *Plane) requestShutdown() {
	atomic.StoreInt32(&p.continueFlag, 0)
	n := atomic.AddInt32(&p.escalateCount, 1)
	sig := syscall.SIGALRM
	if n > escalationLimit {
		sig = syscall.SIGKILL
	}
	if p.Broadcast != nil {
		p.Broadcast(sig)
	}
}

// writeLine writes s directly to fd 2 via the raw syscall, bypassing any
// buffered writer -- used for the diagnostics that precede a hard exit.
func writeLine(s string) {
	b := []byte(s)
	if len(b) > 0 && b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	syscall.Write(2, b)
}

// terminalSignals are signals the original handler treats as
// unconditionally fatal: diagnose, broadcast, _exit(SIGNALED).
var terminalSignals = map[os.Signal]bool{
	syscall.SIGILL:  true,
	syscall.SIGSEGV: true,
	syscall.SIGFPE:  true,
	syscall.SIGBUS:  true,
	syscall.SIGABRT: true,
}

// shutdownSignals request cooperative shutdown without being fatal by
// themselves (§4.3 "Other terminating signals").
var shutdownSignals = map[os.Signal]bool{
	syscall.SIGQUIT:  true,
	syscall.SIGTERM:  true,
	syscall.SIGXCPU:  true,
	syscall.SIGXFSZ:  true,
	syscall.SIGVTALRM: true,
}

// Start installs the handler set and begins servicing signals on a
// background goroutine. Call Stop to uninstall. exitCode is what is
// passed to os.Exit after a terminal signal (typically registry.Signaled).
func (p *Plane) Start(exitCode int) {
	// INT/HUP/ALRM/USR2 plus the fatal and shutdown sets; USR1/TTOU/TTIN/
	// WINCH are ignored per §4.3 (signal.Ignore below).
	sigs := []os.Signal{
		syscall.SIGINT, syscall.SIGHUP, syscall.SIGALRM, syscall.SIGUSR2,
	}
	for s := range terminalSignals {
		sigs = append(sigs, s)
	}
	for s := range shutdownSignals {
		sigs = append(sigs, s)
	}

	p.sigCh = make(chan os.Signal, 16)
	p.done = make(chan struct{})
	signal.Notify(p.sigCh, sigs...)
	signal.Ignore(syscall.SIGUSR1, syscall.SIGTTOU, syscall.SIGTTIN, syscall.SIGWINCH)

	go func() {
		for {
			select {
			case sig, ok := <-p.sigCh:
				if !ok {
					return
				}
				p.handle(sig, exitCode)
			case <-p.done:
				return
			}
		}
	}()
}

// Stop uninstalls the handler set.
func (p *Plane) Stop() {
	signal.Stop(p.sigCh)
	close(p.done)
}

func (p *Plane) handle(sig os.Signal, exitCode int) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}

	switch {
	case s == syscall.SIGINT || s == syscall.SIGHUP:
		atomic.StoreInt32(&p.caughtSigint, 1)
		p.requestShutdown()

	case s == syscall.SIGALRM:
		// Every ALRM is recorded for diagnostics (§4.3 si_code == SI_USER
		// equivalent: Go's os/signal does not expose siginfo, so any
		// externally-observed ALRM is treated as user-originated here).
		// The run deadline does not arrive as a signal: each worker checks
		// TimeEndUnixNano in its run loop.
		p.lastUserAlarm.Store(&UserAlarmInfo{PID: os.Getpid(), UID: os.Getuid(), When: time.Now()})
		p.requestShutdown()

	case s == syscall.SIGUSR2:
		p.emitSnapshot()

	case terminalSignals[s]:
		writeLine(fmt.Sprintf("fatal signal %v received, shutting down", s))
		if p.Broadcast != nil {
			p.Broadcast(syscall.SIGALRM)
		}
		syscall.Exit(exitCode)

	case shutdownSignals[s]:
		p.requestShutdown()
	}
}

// emitSnapshot writes a one-line load/memory snapshot to stdout (§4.3 USR2).
func (p *Plane) emitSnapshot() {
	load1, load5, load15 := readLoadAvg()
	free, total := readMemInfo()
	line := fmt.Sprintf("load: %.2f %.2f %.2f  mem: %d/%dMB free\n",
		load1, load5, load15, free/(1<<20), total/(1<<20))
	syscall.Write(1, []byte(line))
}
