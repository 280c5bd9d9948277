package memmon

import (
	"sync"
	"sync/atomic"

	memerrors "github.com/cubrid-go/memmon/internal/memmon/errors"
)

// ProcessState is the subsystem singleton described in spec.md §3. It
// carries the registry and counter table and gates every operation on
// enabled: while disabled, allocate/free pass straight through to the
// platform allocator and no counters are touched (I6).
type ProcessState struct {
	config  *Config
	enabled atomic.Bool

	// markers holds the current source-root marker list behind an
	// atomic pointer so configwatch can hot-reload it from an fsnotify
	// callback without racing the interceptor's read on every
	// allocation (spec.md §9's fingerprint-extraction open question:
	// reloading markers changes only future fingerprinting, never an
	// already-assigned StatID).
	markers atomic.Pointer[[]string]

	registry *statRegistry
	counters *counterTable
}

var (
	globalMu    sync.Mutex
	globalState *ProcessState
)

// Initialize creates the process-wide singleton with the given server
// name if configuration permits monitoring; otherwise the subsystem
// stays disabled. Idempotent with respect to repeated calls within a
// process instance: a second call is a no-op while a singleton already
// exists.
func Initialize(serverName string, opts ...Option) *ProcessState {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalState != nil {
		return globalState
	}

	cfg := defaultConfig(serverName)
	for _, opt := range opts {
		opt(cfg)
	}

	state := &ProcessState{
		config:   cfg,
		counters: newCounterTable(),
	}
	state.registry = newStatRegistry(state.counters, cfg.MaxStats)
	state.enabled.Store(cfg.EnableMonitoring)

	markers := append([]string(nil), cfg.SourceRootMarkers...)
	state.markers.Store(&markers)

	globalState = state

	return state
}

// Finalize destroys the singleton. Subsequent allocate/free calls go
// untracked (spec.md §6). In debug builds, Finalize first writes a
// human-readable dump of every non-zero StatEntry to aid leak
// detection (spec.md §4.5); see aggregator.go's FinalizeDump.
func Finalize() {
	globalMu.Lock()
	state := globalState
	globalState = nil
	globalMu.Unlock()

	if state == nil {
		return
	}

	if state.config.DebugDump {
		FinalizeDump(state)
	}

	state.enabled.Store(false)
}

// IsEnabled reports whether the subsystem is currently accounting
// allocations.
func IsEnabled() bool {
	globalMu.Lock()
	state := globalState
	globalMu.Unlock()

	return state != nil && state.enabled.Load()
}

// current returns the active singleton, or nil if uninitialized or
// finalized.
func current() *ProcessState {
	globalMu.Lock()
	defer globalMu.Unlock()

	return globalState
}

// Current returns the process-wide singleton, or nil if Initialize has
// not been called or Finalize already has. Exported for collaborators
// outside this package, such as internal/memmon/configwatch, that need
// to reach a running ProcessState without going through the allocator
// entry points.
func Current() *ProcessState {
	return current()
}

// Enabled reports whether p is presently accounting allocations. A nil
// receiver (no singleton) is never enabled.
func (p *ProcessState) Enabled() bool {
	return p != nil && p.enabled.Load()
}

// SourceRootMarkers returns the include-path markers currently used to
// derive fingerprints. Safe to call concurrently with allocation
// traffic and with SetSourceRootMarkers.
func (p *ProcessState) SourceRootMarkers() []string {
	if p == nil {
		return nil
	}

	if m := p.markers.Load(); m != nil {
		return *m
	}

	return nil
}

// SetSourceRootMarkers hot-swaps the include-path marker list used by
// future fingerprint derivations (internal/memmon/configwatch calls
// this from an fsnotify callback). It never touches already-registered
// StatIDs: the registry stays append-only (I5) regardless of how many
// times the marker list changes underneath it.
func (p *ProcessState) SetSourceRootMarkers(markers []string) {
	if p == nil {
		return
	}

	cp := append([]string(nil), markers...)
	p.markers.Store(&cp)
}

// AddStat directly attributes size bytes to fingerprint, for code paths
// that obtain memory outside the interceptor (spec.md §6's add_stat).
// It resolves fingerprint to a StatID through the same registry the
// interceptor uses, so direct and intercepted attribution share buckets.
func (p *ProcessState) AddStat(fingerprint string, size uint64) StatID {
	if !p.Enabled() {
		return NoStat
	}

	stat := p.registry.resolve(fingerprint)
	if stat == NoStat {
		p.diagnose(memerrors.RegistryExhausted(fingerprint))
		return NoStat
	}

	p.counters.add(stat, size)

	return stat
}

// SubStat directly removes size bytes of accounting previously
// attributed to stat (spec.md §6's sub_stat). stat must have come from
// a prior AddStat/resolve on the same ProcessState.
func (p *ProcessState) SubStat(stat StatID, size uint64) {
	if !p.Enabled() || stat == NoStat {
		return
	}

	before := p.counters.at(stat).Current.Load()
	if underflowed := p.counters.sub(stat, size); underflowed {
		p.diagnose(memerrors.CounterUnderflow(uint32(stat), before, size))
	}
}

// diagnose hands err to the configured one-shot sink, if any. Never
// blocks the caller and never itself allocates through the tracked
// path.
func (p *ProcessState) diagnose(err *memerrors.StandardError) {
	if p.config.OnDiagnostic != nil {
		p.config.OnDiagnostic(err)
	}
}
