// Package monitor - types.go defines shared types.
//
// DESIGN: These types cross the tail -> engine -> notify boundary.
// Defined here ONCE so tail and notify don't import each other.
//
// TYPES:
//   - OutcomeRecord:   One parsed access-log entry
//   - TransitionEvent: Serving pool changed between consecutive records
//   - Alert:           A decided alert, handed to the dispatcher
//   - EngineConfig:    Thresholds, cooldown, maintenance gate
package monitor

import "time"

// =============================================================================
// RECORD TYPES - Produced by tail, consumed by the engine
// =============================================================================

// OutcomeRecord is one parsed access-log line. Immutable once parsed.
type OutcomeRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Pool         string    `json:"pool"`
	Status       int       `json:"status"`
	RequestID    string    `json:"request_id"`
	LatencyMs    float64   `json:"latency_ms"`
	UpstreamAddr string    `json:"upstream_addr"`
}

// IsError reports whether the record counts against the error-rate window.
func (r OutcomeRecord) IsError() bool { return r.Status >= 500 }

// TransitionEvent is emitted when the serving pool changes between
// consecutive records.
type TransitionEvent struct {
	From string
	To   string
}

// =============================================================================
// ALERT TYPES - Decided by the engine, delivered by notify
// =============================================================================

// AlertKind identifies the alert condition. Cooldowns are tracked per kind.
type AlertKind string

const (
	KindFailover  AlertKind = "failover"
	KindRecovery  AlertKind = "recovery"
	KindErrorRate AlertKind = "error_rate"
)

// Alert is a decided alert. The payload is a fixed snapshot taken at
// decision time; the dispatcher never reads engine state.
type Alert struct {
	ID           string    `json:"id"`
	Kind         AlertKind `json:"kind"`
	Message      string    `json:"message"`
	PreviousPool string    `json:"previous_pool,omitempty"`
	CurrentPool  string    `json:"current_pool,omitempty"`
	Pool         string    `json:"pool,omitempty"`
	ErrorCount   int       `json:"error_count,omitempty"`
	ErrorRate    float64   `json:"error_rate,omitempty"`
	WindowSize   int       `json:"window_size,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// EngineConfig contains the decision engine settings.
type EngineConfig struct {
	PrimaryPool     string        `yaml:"primary_pool"`     // Pool serving under normal operation
	ErrorThreshold  float64       `yaml:"error_threshold"`  // Percentage; alert when rate >= threshold
	WindowSize      int           `yaml:"window_size"`      // Sliding window capacity
	MinSample       int           `yaml:"min_sample"`       // Records required before rate is evaluated
	Cooldown        time.Duration `yaml:"cooldown"`         // Minimum gap between alerts of one kind
	MaintenanceMode bool          `yaml:"maintenance_mode"` // Suppress emission, never state updates
}
