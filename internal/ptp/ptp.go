// Package ptp implements the per-domain monotonic time source abstraction
// with local-clock fallback and a process-wide singleton registry
// (spec §4.4).
package ptp

import (
	"sync"
	"time"
)

// Helper is the external PTP collaborator the core consumes per domain
// (spec §6). A nil Helper makes a domain behave as the local clock.
type Helper interface {
	NowNs() uint64
	IsLocked() bool
	MasterID() string
	OffsetNs() int64
}

// LocalDomain is the distinguished domain that always uses the local
// monotonic clock (spec §3.1: "domain -1 = no PTP").
const LocalDomain = -1

// ClockHandle is a per-domain reference-counted clock object (spec §3.1).
// For LocalDomain it is always the local monotonic clock; for domain >= 0
// it defers to a Helper when present and locked, falling back to the
// local clock transparently otherwise.
type ClockHandle struct {
	domain   int
	registry *Registry
	helper   Helper
	epoch    time.Time
}

func newHandle(domain int, registry *Registry) *ClockHandle {
	return &ClockHandle{domain: domain, registry: registry, epoch: time.Now()}
}

// Domain returns the PTP domain this handle was created for.
func (h *ClockHandle) Domain() int {
	return h.domain
}

// NowNs returns a monotonic, non-decreasing nanosecond count (spec §4.4).
func (h *ClockHandle) NowNs() uint64 {
	if h.domain == LocalDomain || !h.registry.isEnabled() {
		return h.localNowNs()
	}
	if h.helper != nil && h.helper.IsLocked() {
		return h.helper.NowNs()
	}
	return h.localNowNs()
}

func (h *ClockHandle) localNowNs() uint64 {
	return uint64(time.Since(h.epoch).Nanoseconds())
}

// NowUs and NowMs derive microsecond/millisecond views by integer
// division, preserving monotonicity across calls (spec §4.4).
func (h *ClockHandle) NowUs() uint64 { return h.NowNs() / 1_000 }
func (h *ClockHandle) NowMs() uint64 { return h.NowNs() / 1_000_000 }

// IsLocked reports whether this handle is currently PTP-locked. Domain -1
// is never locked; a handle with no Helper, or a disabled registry, is
// never locked.
func (h *ClockHandle) IsLocked() bool {
	if h.domain == LocalDomain || !h.registry.isEnabled() || h.helper == nil {
		return false
	}
	return h.helper.IsLocked()
}

// OffsetNs returns the last known offset from the PTP master, or 0 for
// the local clock or an unlocked/absent helper.
func (h *ClockHandle) OffsetNs() int64 {
	if h.domain == LocalDomain || !h.registry.isEnabled() || h.helper == nil || !h.helper.IsLocked() {
		return 0
	}
	return h.helper.OffsetNs()
}

// MasterID returns the helper's reported grandmaster identity, or "" when
// there is no helper or the handle is the local clock.
func (h *ClockHandle) MasterID() string {
	if h.domain == LocalDomain || h.helper == nil {
		return ""
	}
	return h.helper.MasterID()
}

// SetHelper attaches (or replaces) the PTP helper collaborator for this
// handle. Passing nil reverts the handle to local-clock behaviour.
func (h *ClockHandle) SetHelper(helper Helper) {
	h.helper = helper
}

// Registry is the per-domain singleton registry (spec §4.4, §9: "modelled
// as process-wide state with init-on-first-use and an explicit remove").
// A Registry can also be constructed directly for testability instead of
// going through the process-wide Default().
type Registry struct {
	mu      sync.Mutex
	handles map[int]*ClockHandle
	enabled bool
}

// NewRegistry creates an empty, enabled registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[int]*ClockHandle), enabled: true}
}

// Get returns the handle for domain, creating it on first call.
// Subsequent calls for the same domain return the same handle.
func (r *Registry) Get(domain int) *ClockHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[domain]; ok {
		return h
	}
	h := newHandle(domain, r)
	r.handles[domain] = h
	return h
}

// IsLocked reports whether domain's clock handle is currently PTP-locked,
// for reporting; it creates the handle on first call like Get.
func (r *Registry) IsLocked(domain int) bool {
	return r.Get(domain).IsLocked()
}

// OffsetNs returns domain's last known offset from the PTP master clock,
// for reporting; it creates the handle on first call like Get.
func (r *Registry) OffsetNs(domain int) int64 {
	return r.Get(domain).OffsetNs()
}

// Remove drops the registry's strong reference to domain's handle.
// Callers already holding the *ClockHandle keep it alive; a later Get for
// the same domain constructs a fresh handle (spec §4.4).
func (r *Registry) Remove(domain int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, domain)
}

// SetEnabled sets the registry's global enable flag. When disabled, every
// handle behaves as the local clock regardless of its helper (spec §4.4).
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *Registry) isEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// TimeForStream is sugar for Get(domain).NowNs() when domain >= 0, else
// the local clock's NowNs() (spec §4.4).
func (r *Registry) TimeForStream(ptpDomain int) uint64 {
	if ptpDomain < 0 {
		return r.Get(LocalDomain).NowNs()
	}
	return r.Get(ptpDomain).NowNs()
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, constructing it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry()
	})
	return defaultReg
}
