package sigplane

import (
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestNewStartsRunning(t *testing.T) {
	p := New()
	if !p.Continue() {
		t.Fatal("new plane should be in the continue state")
	}
	if p.CaughtSigint() {
		t.Fatal("new plane should not have caught SIGINT")
	}
}

func TestRequestShutdownClearsContinue(t *testing.T) {
	p := New()
	var lastSig syscall.Signal
	p.Broadcast = func(sig syscall.Signal) { lastSig = sig }
	p.requestShutdown()
	if p.Continue() {
		t.Error("continue flag should be cleared after shutdown request")
	}
	if lastSig != syscall.SIGALRM {
		t.Errorf("first broadcast = %v, want SIGALRM", lastSig)
	}
}

func TestEscalationToKillAfterFiveBroadcasts(t *testing.T) {
	p := New()
	var sigs []syscall.Signal
	p.Broadcast = func(sig syscall.Signal) { sigs = append(sigs, sig) }

	for i := 0; i < 6; i++ {
		p.requestShutdown()
	}
	if len(sigs) != 6 {
		t.Fatalf("got %d broadcasts, want 6", len(sigs))
	}
	for i := 0; i < 5; i++ {
		if sigs[i] != syscall.SIGALRM {
			t.Errorf("broadcast %d = %v, want SIGALRM", i, sigs[i])
		}
	}
	if sigs[5] != syscall.SIGKILL {
		t.Errorf("broadcast 6 = %v, want SIGKILL (escalated)", sigs[5])
	}
}

func TestHandleSigintSetsCaughtFlag(t *testing.T) {
	p := New()
	p.Broadcast = func(syscall.Signal) {}
	p.handle(syscall.SIGINT, 5)
	if !p.CaughtSigint() {
		t.Error("SIGINT should set caughtSigint")
	}
	if p.Continue() {
		t.Error("SIGINT should clear the continue flag")
	}
}

func TestHandleAlarmRecordsUserInfo(t *testing.T) {
	p := New()
	p.Broadcast = func(syscall.Signal) {}
	before := time.Now()
	p.handle(syscall.SIGALRM, 5)
	info := p.LastUserAlarm()
	if info == nil {
		t.Fatal("expected LastUserAlarm to be recorded")
	}
	if info.When.Before(before) {
		t.Error("recorded alarm time before the call")
	}
}

func TestHandleIgnoredSignalsAreNoop(t *testing.T) {
	p := New()
	called := int32(0)
	p.Broadcast = func(syscall.Signal) { atomic.AddInt32(&called, 1) }
	for _, s := range []syscall.Signal{syscall.SIGUSR1, syscall.SIGWINCH, syscall.SIGTTIN, syscall.SIGTTOU} {
		p.handle(s, 5)
	}
	if !p.Continue() {
		t.Error("ignored signals must not clear the continue flag")
	}
	if atomic.LoadInt32(&called) != 0 {
		t.Error("ignored signals must not broadcast")
	}
}

func TestHandleShutdownSignalBroadcastsWithoutSigintFlag(t *testing.T) {
	p := New()
	var got syscall.Signal
	p.Broadcast = func(sig syscall.Signal) { got = sig }
	p.handle(syscall.SIGTERM, 5)
	if p.CaughtSigint() {
		t.Error("SIGTERM should not set caughtSigint (that's INT/HUP only)")
	}
	if got != syscall.SIGALRM {
		t.Errorf("broadcast = %v, want SIGALRM", got)
	}
}
