// Package tiles fetches map tiles and aggregates their failures into a
// debounced health signal.
package tiles

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDebounce is the quiet period before a health notification.
const DefaultDebounce = 500 * time.Millisecond

// HealthState is the accumulated tile failure state. FailureCount only
// grows until Reset.
type HealthState struct {
	FailureCount uint    `json:"failureCount"`
	LastError    *string `json:"lastError,omitempty"`
}

// Healthy reports whether no failure has been recorded since the last reset.
func (s HealthState) Healthy() bool { return s.FailureCount == 0 }

// MonitorOptions configures a HealthMonitor.
type MonitorOptions struct {
	Debounce time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
	// OnChange receives one snapshot per burst of failures.
	OnChange func(HealthState)
}

// HealthMonitor counts tile failures. Every failure is counted at once;
// the notification is delayed until no failure has arrived for the
// debounce window, so a burst produces a single update.
type HealthMonitor struct {
	debounce time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	state    HealthState
	onChange func(HealthState)
	timer    clockwork.Timer
	gen      uint64
	closed   bool
}

// NewHealthMonitor creates a monitor with no failures.
func NewHealthMonitor(opts MonitorOptions) *HealthMonitor {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HealthMonitor{
		debounce: opts.Debounce,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "tile_health"),
		onChange: opts.OnChange,
	}
}

// SetOnChange replaces the notification callback.
func (h *HealthMonitor) SetOnChange(fn func(HealthState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// RecordFailure counts a failed fetch and (re)starts the debounce window.
func (h *HealthMonitor) RecordFailure(err error) {
	msg := "unknown tile error"
	if err != nil {
		msg = err.Error()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.state.FailureCount++
	h.state.LastError = &msg
	if h.closed {
		return
	}

	if h.timer != nil {
		h.timer.Stop()
	}
	h.gen++
	gen := h.gen
	h.timer = h.clock.AfterFunc(h.debounce, func() { h.notify(gen) })
}

// Reset clears the failure state and drops any pending notification.
func (h *HealthMonitor) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	h.state = HealthState{}
	h.logger.Debug("tile health reset")
}

// Snapshot returns a copy of the current state.
func (h *HealthMonitor) Snapshot() HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Close cancels the pending notification. Failures are still counted.
func (h *HealthMonitor) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	h.closed = true
}

func (h *HealthMonitor) notify(gen uint64) {
	h.mu.Lock()
	if gen != h.gen || h.closed {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	snap := h.snapshotLocked()
	fn := h.onChange
	h.mu.Unlock()

	h.logger.Info("tile failures", "count", snap.FailureCount, "last_error", *snap.LastError)
	if fn != nil {
		fn(snap)
	}
}

func (h *HealthMonitor) stopLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.gen++
}

func (h *HealthMonitor) snapshotLocked() HealthState {
	s := HealthState{FailureCount: h.state.FailureCount}
	if h.state.LastError != nil {
		msg := *h.state.LastError
		s.LastError = &msg
	}
	return s
}
