// Package fleet implements the fleet scheduler (§4.4): it turns a
// run-plan into worker processes, using self re-exec in place of the
// original design's fork, and reaps them into exit-code and rusage
// results.
//
// The spawn/signal/reap shape is grounded on the teacher's
// internal/executor.BCCExecutor.Run. The fleet scheduler keeps its
// Setpgid, so a single signal reaches a worker's whole process group,
// and applies it to many worker processes in flight at once; each
// worker is then reaped by a direct cmd.Wait, one after another.
package fleet

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/loadbreaker/loadbreaker/internal/metrics"
	"github.com/loadbreaker/loadbreaker/internal/registry"
	"github.com/loadbreaker/loadbreaker/internal/runplan"
	"github.com/loadbreaker/loadbreaker/internal/shared"
	"github.com/loadbreaker/loadbreaker/internal/sigplane"
)

// Environment variable names a worker process reads on startup to learn
// which stressor, instance and shared-memory slot it owns (§4.4 step a:
// "the worker is re-exec'd with the same binary in a distinct mode").
const (
	EnvWorkerMode  = "LOADBREAKER_WORKER"
	EnvStressor    = "LOADBREAKER_STRESSOR"
	EnvInstance    = "LOADBREAKER_INSTANCE"
	EnvNumInst     = "LOADBREAKER_NUM_INSTANCES"
	EnvSlot        = "LOADBREAKER_SLOT"
	EnvMaxOps      = "LOADBREAKER_MAX_OPS"
	EnvDeadline    = "LOADBREAKER_DEADLINE_UNIX_NANO"
	EnvPlaneN      = "LOADBREAKER_PLANE_N"
	EnvStatsSize   = "LOADBREAKER_STATS_SIZE"
	EnvChecksumSz  = "LOADBREAKER_CHECKSUM_SIZE"
	EnvScratchDir  = "LOADBREAKER_SCRATCH_DIR"
)

// Slot is one (entry, instance) pair bound to a shared-memory record
// index, the unit of work the scheduler hands to a worker process.
type Slot struct {
	Entry    *runplan.Entry
	Instance int32
	Index    int
}

// AllocateSlots flattens a plan's runnable entries into a flat slot list,
// one per instance, in the order the plan builder emitted its entries
// (§4.4 step a). Entries marked Unsupported or Excluded contribute no
// slots.
func AllocateSlots(plan *runplan.Plan) []Slot {
	var slots []Slot
	idx := 0
	for _, e := range plan.Entries {
		if e.IgnoreRun != runplan.NotIgnored {
			continue
		}
		e.SlotBase = idx
		for i := int32(0); i < e.NumInstances; i++ {
			slots = append(slots, Slot{Entry: e, Instance: i, Index: idx})
			idx++
		}
	}
	return slots
}

// Result is one slot's final outcome after its worker has been reaped.
type Result struct {
	Slot     Slot
	ExitCode registry.ExitCode
	Stats    shared.StatsRecord
	Checksum shared.ChecksumRecord
	OOMKill  bool
}

// Scheduler owns the shared plane, the signal plane and the means to
// spawn worker processes, and drives the three run policies (§4.4).
type Scheduler struct {
	Plane      *shared.Plane
	Sig        *sigplane.Plane
	BinaryPath string
	ScratchDir string
	Deadline   time.Time
	Abort      bool // stop launching further entries once one fails (§6.2 --abort)

	// spawn is overridable in tests; production code leaves it nil and
	// gets realSpawn.
	spawn func(ctx context.Context, s *Scheduler, slot Slot) (*exec.Cmd, error)

	mu      sync.Mutex
	running map[int]*exec.Cmd // pid -> cmd, for Broadcast
}

// NewScheduler builds a scheduler around an already-created shared plane.
func NewScheduler(plane *shared.Plane, sig *sigplane.Plane, binaryPath string) *Scheduler {
	s := &Scheduler{
		Plane:      plane,
		Sig:        sig,
		BinaryPath: binaryPath,
		running:    map[int]*exec.Cmd{},
	}
	if sig != nil {
		sig.Broadcast = s.broadcast
	}
	return s
}

// broadcast delivers sig to every currently-running worker's process
// group (§4.3 "the parent's Broadcast signals every live child").
func (s *Scheduler) broadcast(sig syscall.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid := range s.running {
		syscall.Kill(-pid, sig)
	}
}

func (s *Scheduler) trackStart(cmd *exec.Cmd) {
	s.mu.Lock()
	s.running[cmd.Process.Pid] = cmd
	s.mu.Unlock()
}

func (s *Scheduler) trackExit(pid int) {
	s.mu.Lock()
	delete(s.running, pid)
	s.mu.Unlock()
}

// realSpawn re-execs BinaryPath in worker mode for the given slot,
// inheriting the shared plane's file descriptors (§4.2, §4.4 step a).
func realSpawn(ctx context.Context, s *Scheduler, slot Slot) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, s.BinaryPath)
	cmd.Args = []string{s.BinaryPath}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = s.Plane.ExtraFiles()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	maxOps := slot.Entry.OpsBudget
	cmd.Env = append(os.Environ(),
		EnvWorkerMode+"=1",
		EnvStressor+"="+slot.Entry.Descriptor.Name,
		EnvInstance+"="+strconv.Itoa(int(slot.Instance)),
		EnvNumInst+"="+strconv.Itoa(int(slot.Entry.NumInstances)),
		EnvSlot+"="+strconv.Itoa(slot.Index),
		EnvMaxOps+"="+strconv.FormatUint(maxOps, 10),
		EnvDeadline+"="+strconv.FormatInt(deadlineNanos(s.Deadline), 10),
		EnvPlaneN+"="+strconv.Itoa(s.Plane.N),
		EnvStatsSize+"="+strconv.Itoa(s.Plane.StatsTotalSize()),
		EnvChecksumSz+"="+strconv.Itoa(s.Plane.ChecksumTotalSize()),
		EnvScratchDir+"="+s.ScratchDir,
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn worker %s[%d]: %w", slot.Entry.Descriptor.Name, slot.Instance, err)
	}
	s.trackStart(cmd)
	return cmd, nil
}

func deadlineNanos(d time.Time) int64 {
	if d.IsZero() {
		return 0
	}
	return d.UnixNano()
}

func (s *Scheduler) doSpawn(ctx context.Context, slot Slot) (*exec.Cmd, error) {
	if s.spawn != nil {
		return s.spawn(ctx, s, slot)
	}
	return realSpawn(ctx, s, slot)
}

// reap waits for cmd to exit, converts its status into a registry exit
// code (§4.4 step f: a worker that returned normally already encoded its
// own registry.ExitCode as its process exit status; anything else
// reaching here means it was signalled), and folds the reaped rusage
// into the slot's stats record.
func (s *Scheduler) reap(cmd *exec.Cmd, slot Slot) Result {
	waitErr := cmd.Wait()
	pid := cmd.Process.Pid
	s.trackExit(pid)

	res := Result{Slot: slot}
	if slot.Index < len(s.Plane.Stats) {
		res.Stats = s.Plane.Stats[slot.Index]
	}
	if slot.Index < len(s.Plane.Checksums) {
		res.Checksum = s.Plane.Checksums[slot.Index]
	}

	ws, _ := cmd.ProcessState.Sys().(syscall.WaitStatus)
	switch {
	case ws.Signaled():
		res.ExitCode = registry.Signaled
		res.OOMKill = ws.Signal() == syscall.SIGKILL && likelyOOMKill(pid)
	case waitErr == nil:
		res.ExitCode = registry.ExitCode(cmd.ProcessState.ExitCode())
	default:
		res.ExitCode = registry.ExitCode(cmd.ProcessState.ExitCode())
		if res.ExitCode < registry.Success {
			res.ExitCode = registry.Failure
		}
	}

	if ru, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok {
		utime, stime := metrics.RusageNanos(ru)
		res.Stats.UtimeTotalNano += utime
		res.Stats.StimeTotalNano += stime
		if rss := metrics.MaxRSSKB(ru); rss > res.Stats.MaxRSSKB {
			res.Stats.MaxRSSKB = rss
		}
	}
	return res
}
