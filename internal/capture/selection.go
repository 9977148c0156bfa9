package capture

import (
	"sync"
	"time"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// DefaultOrder is the fallback chain when none is configured
var DefaultOrder = []models.StrategyKind{models.StrategyNative, models.StrategyHybrid, models.StrategyBrowser}

// Capabilities are the host facts selection depends on
type Capabilities struct {
	// NativeAvailable is set when a native framework exists and passed its checks
	NativeAvailable bool
	// NativeVersionOK is set when the OS version satisfies the framework's minimum
	NativeVersionOK bool
	// NativeSystemAudio is set when the framework can supply system audio
	NativeSystemAudio bool
	ScreenPermission  models.Permission
	WantSystemAudio   bool
}

// Policy is the configurable part of selection
type Policy struct {
	Order           []models.StrategyKind
	FailureCooldown time.Duration
}

// History records recent StrategyUnavailable failures per kind
type History struct {
	mu       sync.Mutex
	failures map[models.StrategyKind]time.Time
}

// Record notes that kind failed to initialize at t
func (h *History) Record(kind models.StrategyKind, t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures == nil {
		h.failures = make(map[models.StrategyKind]time.Time)
	}
	h.failures[kind] = t
}

// Clear forgets the failure of kind
func (h *History) Clear(kind models.StrategyKind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, kind)
}

// Snapshot returns a copy of the failure times
func (h *History) Snapshot() map[models.StrategyKind]time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[models.StrategyKind]time.Time, len(h.failures))
	for k, v := range h.failures {
		out[k] = v
	}
	return out
}

// Select returns the strategies to try, in order. It is a pure function of its inputs:
// native needs a usable framework, a satisfied version gate and screen permission that
// is not denied; hybrid additionally needs native system audio and a system audio
// request. Kinds that failed within the cooldown are skipped, except browser, which is
// appended as the last resort whenever it is missing.
func Select(c Capabilities, p Policy, failures map[models.StrategyKind]time.Time, now time.Time) []models.StrategyKind {
	order := p.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	coolingDown := func(k models.StrategyKind) bool {
		t, ok := failures[k]
		return ok && p.FailureCooldown > 0 && now.Sub(t) < p.FailureCooldown
	}

	nativeOK := c.NativeAvailable && c.NativeVersionOK && c.ScreenPermission != models.PermissionDenied

	var out []models.StrategyKind
	seen := make(map[models.StrategyKind]bool)
	for _, k := range order {
		if seen[k] {
			continue
		}
		seen[k] = true

		var eligible bool
		switch k {
		case models.StrategyNative:
			eligible = nativeOK
		case models.StrategyHybrid:
			eligible = nativeOK && c.NativeSystemAudio && c.WantSystemAudio
		case models.StrategyBrowser:
			eligible = true
		}
		if eligible && !coolingDown(k) {
			out = append(out, k)
		}
	}

	// browser is the final fallback even when the configured order leaves it out
	// or it is cooling down
	for _, k := range out {
		if k == models.StrategyBrowser {
			return out
		}
	}
	return append(out, models.StrategyBrowser)
}
