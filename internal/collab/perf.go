package collab

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// perfCounter is one hardware event this adapter tracks.
type perfCounter struct {
	name   string
	config uint64
}

var perfCounters = []perfCounter{
	{"cycles", unix.PERF_COUNT_HW_CPU_CYCLES},
	{"instructions", unix.PERF_COUNT_HW_INSTRUCTIONS},
}

// perfAdapter reads CPU hardware performance counters via perf_event_open
// (§5 perf collaborator: ties a CPU stressor's bogo-ops figure back to
// actual cycles/instructions retired, independent of the kernel's own
// scheduling decisions).
type perfAdapter struct {
	mu   sync.Mutex
	fds  map[string]int
	errs map[string]error
}

// NewPerf returns the hardware-performance-counter collaborator.
func NewPerf() Adapter { return &perfAdapter{} }

func (p *perfAdapter) Name() string { return "perf" }

func newPerfAttr(config uint64) *unix.PerfEventAttr {
	return &unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config: config,
		Bits:   unix.PerfBitDisabled | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
	}
}

func (p *perfAdapter) Available() Availability {
	fd, err := unix.PerfEventOpen(newPerfAttr(unix.PERF_COUNT_HW_CPU_CYCLES), 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return Availability{Tier: 0, Reason: fmt.Sprintf("perf_event_open unavailable: %v", err)}
	}
	syscall.Close(fd)
	return Availability{Tier: 1}
}

func (p *perfAdapter) Start(ctx context.Context) error {
	p.fds = map[string]int{}
	p.errs = map[string]error{}
	for _, c := range perfCounters {
		attr := newPerfAttr(c.config)
		fd, err := unix.PerfEventOpen(attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			p.errs[c.name] = err
			continue
		}
		unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0)
		unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0)
		p.fds[c.name] = fd
	}
	return nil
}

func (p *perfAdapter) Stop(ctx context.Context) (map[string]float64, error) {
	out := map[string]float64{}
	for name, fd := range p.fds {
		unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_DISABLE, 0)
		var buf [8]byte
		if _, err := syscall.Read(fd, buf[:]); err == nil {
			out[name] = float64(binary.LittleEndian.Uint64(buf[:]))
		}
		syscall.Close(fd)
	}
	return out, nil
}
