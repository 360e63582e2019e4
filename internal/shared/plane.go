// Package shared implements the shared-memory plane: two independently
// mapped segments (per-instance stats, per-instance checksums) plus the
// small header of fleet-wide counters, laid out so a parent process and
// many exec'd worker processes can all see the same physical pages.
//
// Go cannot safely fork() without exec (the runtime's goroutine scheduler,
// GC and signal machinery do not survive a bare fork in a multi-threaded
// process), so "shared anonymous mmap inherited across fork" from the
// original design is rewritten as "shared mmap of a memfd, inherited
// across exec via an extra file descriptor". Every worker is the same
// binary re-invoked in a special worker mode; see internal/fleet.
package shared

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MaxAuxMetrics bounds the per-instance auxiliary metric slots.
const MaxAuxMetrics = 4

// auxDescLen is the inline description width for an auxiliary metric.
// The original design carries a description pointer; a pointer computed
// in one process is meaningless in another's address space, so the
// description is inlined instead.
const auxDescLen = 32

// AuxMetric is one user-provided auxiliary measurement.
type AuxMetric struct {
	Desc  [auxDescLen]byte
	Value float64
}

// SetDesc copies s (truncated) into the fixed-width description field.
func (a *AuxMetric) SetDesc(s string) {
	n := copy(a.Desc[:], s)
	for i := n; i < auxDescLen; i++ {
		a.Desc[i] = 0
	}
}

// DescString returns the description as a Go string.
func (a *AuxMetric) DescString() string {
	n := 0
	for n < auxDescLen && a.Desc[n] != 0 {
		n++
	}
	return string(a.Desc[:n])
}

// StatsRecord is one worker's slot in the shared stats segment (§3).
// It is written by exactly one process (the worker owning it) and read
// by the parent only after that worker has been reaped (§3 invariant I2).
type StatsRecord struct {
	PID            int32
	Signalled      uint32 // bool as uint32 for atomic access
	Completed      uint32
	RunOK          uint32
	CounterReady   uint32
	ForceKilled    uint32
	_              uint32 // padding to 8-byte align the int64s below
	StartUnixNano  int64
	DurationNano   int64
	CounterTotal   uint64
	DurTotalNano   int64
	UtimeNano      int64
	StimeNano      int64
	UtimeTotalNano int64
	StimeTotalNano int64
	MaxRSSKB       int64
	InterruptsSnap int64
	PerfSnap       int64
	ThermalSnapMC  int64 // milli-degrees C
	AuxCount       int32
	_pad2          int32
	Aux            [MaxAuxMetrics]AuxMetric
}

// ChecksumRecord is one worker's slot in the (separately mapped)
// checksum segment (§3). It is deliberately a different mapping from
// StatsRecord so a stray write into the stats area cannot also corrupt
// the value the parent re-derives its integrity check from.
type ChecksumRecord struct {
	Counter uint64
	RunOK   uint32
	_       uint32 // padding, hashed as zero per spec's "counter, run_ok, padding"
	Hash    uint64
}

// Header carries fleet-wide counters and the cross-process spinlock used
// to serialise log writes. All counter fields are mutated with sync/atomic
// across process boundaries; this is sound because the memory backing
// them is a single set of physical pages mapped MAP_SHARED into every
// process, and ordinary cache-coherent atomic read-modify-write applies
// regardless of which process issues it.
type Header struct {
	SegmentLength    uint64
	Started          int32
	Exited           int32
	Reaped           int32
	Failed           int32
	Alarmed          int32
	TimeStartedNanos int64
	CaughtSigint     uint32
	MappedNone       int32
	MappedRO         int32
	MappedWO         int32
	LogLock          uint32
}

// Sentinels are the three one-page probes each worker maps for itself
// (§4.2). They are per-process, not shared: their purpose is to let a
// workload dereference a page of known protection and observe the
// resulting fault, not to carry shared data.
type Sentinels struct {
	None []byte // PROT_NONE
	RO   []byte // PROT_READ
	WO   []byte // PROT_READ -- named for intent, not actual protection (§9)
}

// mapping is one memfd-backed, page-aligned MAP_SHARED region.
type mapping struct {
	file *os.File
	data []byte
}

func newMapping(name string, size int) (*mapping, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create %s: %w", name, err)
	}
	f := os.NewFile(uintptr(fd), name)
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate %s: %w", name, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}
	return &mapping{file: f, data: data}, nil
}

func attachMapping(fd uintptr, size int) (*mapping, error) {
	f := os.NewFile(fd, "inherited")
	data, err := unix.Mmap(int(fd), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap inherited fd %d: %w", fd, err)
	}
	return &mapping{file: f, data: data}, nil
}

func (m *mapping) close() error {
	var errs []error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			errs = append(errs, err)
		}
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("unmap/close: %v", errs)
	}
	return nil
}

func pageAlign(n, pageSize int) int {
	if n%pageSize == 0 {
		return n
	}
	return (n/pageSize + 1) * pageSize
}

// Plane is the shared-memory plane: header+stats segment, checksum
// segment, and page-size bookkeeping. Layout follows §3 invariants I4/I5.
type Plane struct {
	headerMap   *mapping
	statsMap    *mapping
	checksumMap *mapping

	Header    *Header
	Stats     []StatsRecord
	Checksums []ChecksumRecord

	N        int
	PageSize int

	statsTotalSize    int
	checksumTotalSize int
}

var headerSize = int(unsafe.Sizeof(Header{}))
var statsRecSize = int(unsafe.Sizeof(StatsRecord{}))
var checksumRecSize = int(unsafe.Sizeof(ChecksumRecord{}))

// New creates the shared plane sized for n instances (§4.2 contract).
// Any failure unwinds previously-created mappings in reverse order.
func New(n int) (p *Plane, err error) {
	pageSize := os.Getpagesize()

	var created []*mapping
	defer func() {
		if err != nil {
			for i := len(created) - 1; i >= 0; i-- {
				created[i].close()
			}
		}
	}()

	// I4: sizeof(header) + sizeof(stats)*N, page-aligned, +2 pages
	// (one alignment/slack page, one trailing guard page).
	base := headerSize + statsRecSize*n
	statsTotal := pageAlign(base, pageSize) + 2*pageSize

	hm, err := newMapping("loadbreaker-header", statsTotal)
	if err != nil {
		return nil, err
	}
	created = append(created, hm)

	// I5: checksum segment, rounded up to page boundary.
	checksumTotal := pageAlign(checksumRecSize*n, pageSize)
	if checksumTotal == 0 {
		checksumTotal = pageSize
	}
	cm, err := newMapping("loadbreaker-checksums", checksumTotal)
	if err != nil {
		return nil, err
	}
	created = append(created, cm)

	p = &Plane{
		headerMap:         hm,
		statsMap:          hm,
		checksumMap:       cm,
		N:                 n,
		PageSize:          pageSize,
		statsTotalSize:    statsTotal,
		checksumTotalSize: checksumTotal,
	}
	if err = p.bindViews(); err != nil {
		return nil, err
	}
	if err = p.guardLastPage(); err != nil {
		return nil, err
	}
	p.Header.SegmentLength = uint64(statsTotal)
	return p, nil
}

// bindViews casts the raw mmap bytes onto typed Go views. This is the
// idiomatic Go way to treat a foreign memory region (here, shared pages)
// as a slice of a fixed-layout struct.
func (p *Plane) bindViews() error {
	data := p.headerMap.data
	if len(data) < headerSize {
		return fmt.Errorf("segment too small for header")
	}
	p.Header = (*Header)(unsafe.Pointer(&data[0]))

	statsBytes := data[headerSize:]
	if p.N > 0 {
		if len(statsBytes) < statsRecSize*p.N {
			return fmt.Errorf("segment too small for %d stats records", p.N)
		}
		p.Stats = unsafe.Slice((*StatsRecord)(unsafe.Pointer(&statsBytes[0])), p.N)
	}

	if p.N > 0 && len(p.checksumMap.data) >= checksumRecSize*p.N {
		p.Checksums = unsafe.Slice((*ChecksumRecord)(unsafe.Pointer(&p.checksumMap.data[0])), p.N)
	}
	return nil
}

// guardLastPage marks the final page of the stats mapping PROT_NONE
// (§4.2 Guard page / §9: intentional, detects stack/heap smashing into
// shared state).
func (p *Plane) guardLastPage() error {
	guardOff := p.statsTotalSize - p.PageSize
	guard := p.statsMap.data[guardOff : guardOff+p.PageSize]
	if err := unix.Mprotect(guard, unix.PROT_NONE); err != nil {
		return fmt.Errorf("mprotect guard page: %w", err)
	}
	return nil
}

// ExtraFiles returns the file handles to pass as exec.Cmd.ExtraFiles so
// a re-exec'd worker inherits the same physical shared-memory pages.
// By os/exec convention these land at fd 3 and 4 in the child.
func (p *Plane) ExtraFiles() []*os.File {
	return []*os.File{p.headerMap.file, p.checksumMap.file}
}

// Attach is called inside a worker process to map the inherited fds
// (3 = header+stats, 4 = checksums) into its own address space.
func Attach(n, statsTotalSize, checksumTotalSize int) (*Plane, error) {
	hm, err := attachMapping(3, statsTotalSize)
	if err != nil {
		return nil, fmt.Errorf("attach header+stats: %w", err)
	}
	cm, err := attachMapping(4, checksumTotalSize)
	if err != nil {
		hm.close()
		return nil, fmt.Errorf("attach checksums: %w", err)
	}
	p := &Plane{
		headerMap:         hm,
		statsMap:          hm,
		checksumMap:       cm,
		N:                 n,
		PageSize:          os.Getpagesize(),
		statsTotalSize:    statsTotalSize,
		checksumTotalSize: checksumTotalSize,
	}
	if err := p.bindViews(); err != nil {
		hm.close()
		cm.close()
		return nil, err
	}
	return p, nil
}

// StatsTotalSize and ChecksumTotalSize are exported so the parent can
// pass them to the worker via environment variables (the worker cannot
// recompute them without knowing N, which it does, and page size, which
// it also knows -- but passing explicitly avoids any drift).
func (p *Plane) StatsTotalSize() int    { return p.statsTotalSize }
func (p *Plane) ChecksumTotalSize() int { return p.checksumTotalSize }

// Close unmaps both segments in reverse order of creation (§4.2).
func (p *Plane) Close() error {
	var err error
	if e := p.checksumMap.close(); e != nil {
		err = e
	}
	if e := p.headerMap.close(); e != nil {
		err = e
	}
	return err
}

// NewSentinels maps the three one-page probe regions for the calling
// process (§4.2) and bumps the shared header's mapped-page counters.
func NewSentinels(h *Header) (*Sentinels, error) {
	pageSize := os.Getpagesize()
	mk := func(prot int) ([]byte, error) {
		b, err := unix.Mmap(-1, 0, pageSize, prot, unix.MAP_PRIVATE|unix.MAP_ANON)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	none, err := mk(unix.PROT_NONE)
	if err != nil {
		return nil, fmt.Errorf("map none sentinel: %w", err)
	}
	// "wo" is PROT_READ despite its name -- preserved intentionally (§9).
	ro, err := mk(unix.PROT_READ)
	if err != nil {
		unix.Munmap(none)
		return nil, fmt.Errorf("map ro sentinel: %w", err)
	}
	wo, err := mk(unix.PROT_READ)
	if err != nil {
		unix.Munmap(none)
		unix.Munmap(ro)
		return nil, fmt.Errorf("map wo sentinel: %w", err)
	}

	if h != nil {
		atomic.AddInt32(&h.MappedNone, 1)
		atomic.AddInt32(&h.MappedRO, 1)
		atomic.AddInt32(&h.MappedWO, 1)
	}

	return &Sentinels{None: none, RO: ro, WO: wo}, nil
}

// Close unmaps all three sentinel pages.
func (s *Sentinels) Close() error {
	var errs []error
	for _, b := range [][]byte{s.None, s.RO, s.WO} {
		if b != nil {
			if err := unix.Munmap(b); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("unmap sentinels: %v", errs)
	}
	return nil
}
