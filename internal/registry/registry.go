// Package registry defines the stressor module interface (§6.1) and the
// static catalog of stressor descriptors (§2.1/§4.1), grounded on the
// teacher's tiered-capability ToolSpec/Collector pattern
// (internal/executor/registry.go, internal/collector/collector.go in the
// example pack) generalised from "invoke an external BCC tool" to
// "invoke an in-process workload body".
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Class is a bitmask category for a stressor (§3 Stressor descriptor).
type Class uint32

const (
	ClassCPU Class = 1 << iota
	ClassCPUCache
	ClassDevice
	ClassFilesystem
	ClassGPU
	ClassInterrupt
	ClassIO
	ClassMemory
	ClassNetwork
	ClassOS
	ClassPipe
	ClassScheduler
	ClassSecurity
	ClassVM
	ClassPathological
)

var classNames = []struct {
	c    Class
	name string
}{
	{ClassCPU, "cpu"},
	{ClassCPUCache, "cpu-cache"},
	{ClassDevice, "device"},
	{ClassFilesystem, "filesystem"},
	{ClassGPU, "gpu"},
	{ClassInterrupt, "interrupt"},
	{ClassIO, "io"},
	{ClassMemory, "memory"},
	{ClassNetwork, "network"},
	{ClassOS, "os"},
	{ClassPipe, "pipe"},
	{ClassScheduler, "scheduler"},
	{ClassSecurity, "security"},
	{ClassVM, "vm"},
	{ClassPathological, "pathological"},
}

// ParseClass resolves a class name to its bit, case-insensitively.
func ParseClass(name string) (Class, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, e := range classNames {
		if e.name == name {
			return e.c, true
		}
	}
	return 0, false
}

// String renders a (possibly multi-bit) class set as comma-joined names.
func (c Class) String() string {
	var parts []string
	for _, e := range classNames {
		if c&e.c != 0 {
			parts = append(parts, e.name)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ",")
}

// VerifyMode controls whether a stressor's bogo-ops are checksum-verified.
type VerifyMode int

const (
	VerifyNone VerifyMode = iota
	VerifyOptional
	VerifyAlways
)

// ExitCode mirrors §6.3's worker exit-status vocabulary.
type ExitCode int

const (
	Success              ExitCode = 0
	Failure              ExitCode = 1 // harness bug, not workload
	NotSuccess           ExitCode = 2 // stressor reported failure
	NoResource           ExitCode = 3
	NotImplemented       ExitCode = 4
	Signaled             ExitCode = 5
	BySysExit            ExitCode = 6
	MetricsUntrustworthy ExitCode = 7
)

// severity orders exit codes per §6.3 ("METRICS < NO_RESOURCE < NOT_SUCCESS < others").
var severity = map[ExitCode]int{
	Success:              0,
	MetricsUntrustworthy: 1,
	NoResource:           2,
	NotSuccess:           3,
	NotImplemented:       4,
	Signaled:             4,
	BySysExit:            4,
	Failure:              4,
}

// MoreSevere reports whether a is a more severe outcome than b.
func MoreSevere(a, b ExitCode) bool {
	return severity[a] > severity[b]
}

// CounterInfo is the mutable per-instance bag a running workload mutates.
// Counter points into the shared stats plane (owned by internal/shared
// and internal/fleet); the bool fields point at worker-local flags that
// the worker copies into its stats slot after Run returns. registry
// stays free of that dependency so the module interface has no cyclic
// import.
type CounterInfo struct {
	Counter      *uint64
	RunOK        *bool
	CounterReady *bool
	ForceKilled  *bool
}

// Add increments the bogo-ops counter by delta.
func (ci *CounterInfo) Add(delta uint64) {
	*ci.Counter += delta
}

// AuxMetric is one user-supplied auxiliary measurement a workload reports.
type AuxMetric struct {
	Description string
	Value       float64
}

// Sentinels are the three per-instance probe pages (§4.2).
type Sentinels struct {
	None []byte
	RO   []byte
	WO   []byte
}

// Args is everything a workload's Run receives (§6.1).
type Args struct {
	CI              *CounterInfo
	Name            string
	MaxOps          uint64
	Instance        int32
	NumInstances    int32
	PID             int
	PageSize        int
	TimeEndUnixNano int64
	Sentinels       Sentinels
	Metrics         *[]AuxMetric
	Continue        func() bool // false once shutdown has been requested
}

// Deadline reports whether the instance has run past its time budget.
func (a *Args) Deadline(nowUnixNano int64) bool {
	return a.TimeEndUnixNano > 0 && nowUnixNano >= a.TimeEndUnixNano
}

// OptSetter binds a stressor-specific command line option to a setter.
type OptSetter struct {
	Opt    string
	Setter func(arg string) error
}

// HelpLine is one line of a stressor's --help output.
type HelpLine struct {
	Opt  string
	Text string
}

// Module is the stressor workload interface (§6.1). A concrete stressor
// implements this once; the registry stores it behind a Descriptor.
type Module interface {
	Supported(name string) error // non-nil => not supported here
	Init() error
	Deinit() error
	SetDefault()
	SetLimit(max uint64)
	Run(args *Args) ExitCode
	Help() []HelpLine
	OptSetters() []OptSetter
}

// Descriptor is the immutable stressor catalog entry (§3).
type Descriptor struct {
	ID         uint32
	Name       string
	Class      Class
	ShortOpt   byte
	OpsCode    string
	VerifyMode VerifyMode
	Module     Module
}

// Registry is the static stressor catalog, keyed by id and by
// case-insensitive, `_`/`-`-munged name (§3 invariant I3).
type Registry struct {
	mu      sync.RWMutex
	byID    map[uint32]*Descriptor
	byName  map[string]*Descriptor
	ordered []*Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[uint32]*Descriptor),
		byName: make(map[string]*Descriptor),
	}
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, "_", "-")
}

// Register adds a descriptor, enforcing unique id and name (I3).
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[d.ID]; ok {
		return fmt.Errorf("registry: duplicate stressor id %d (%s)", d.ID, d.Name)
	}
	key := normalizeName(d.Name)
	if _, ok := r.byName[key]; ok {
		return fmt.Errorf("registry: duplicate stressor name %q", d.Name)
	}
	r.byID[d.ID] = d
	r.byName[key] = d
	r.ordered = append(r.ordered, d)
	return nil
}

// Lookup resolves a stressor by name, case-insensitive with `_`/`-` munging.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[normalizeName(name)]
	return d, ok
}

// LookupID resolves a stressor by its stable id.
func (r *Registry) LookupID(id uint32) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// All returns every registered descriptor, in registration order.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByClass returns descriptors whose class bitset intersects filter,
// sorted by name for deterministic iteration (§8 property 1).
func (r *Registry) ByClass(filter Class) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, d := range r.ordered {
		if d.Class&filter != 0 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all registered stressor names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ordered))
	for _, d := range r.ordered {
		out = append(out, d.Name)
	}
	sort.Strings(out)
	return out
}
