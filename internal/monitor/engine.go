// Package monitor - engine.go decides when observed conditions become alerts.
//
// DESIGN: Engine is the single consumer of the record stream. Per record:
//  1. Update pool tracker and error window unconditionally. Detection
//     state never pauses, even in maintenance mode.
//  2. If the pool changed, classify the transition against the primary
//     pool (back to primary = recovery, away = failover) and emit if the
//     kind's cooldown elapsed.
//  3. Independently, emit an error_rate alert if the window rate crossed
//     the threshold and that kind's cooldown elapsed.
//
// Steps 2 and 3 are independent: one record can produce both alerts.
// Cooldowns are per kind and recorded at decision time, so a flapping
// failover never suppresses an unrelated error-rate alert.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Engine consumes OutcomeRecords in arrival order and produces alerts.
// All methods must be called from a single goroutine, except
// SetMaintenance which may be toggled concurrently.
type Engine struct {
	cfg    EngineConfig
	window *ErrorRateWindow
	pools  poolTracker

	lastAlert map[AlertKind]time.Time
	records   int64
	now       func() time.Time

	maintMu     sync.RWMutex
	maintenance bool
}

// NewEngine creates an engine with empty detection state.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 200
	}
	if cfg.MinSample < 1 {
		cfg.MinSample = 1
	}
	return &Engine{
		cfg:         cfg,
		window:      NewErrorRateWindow(cfg.WindowSize),
		lastAlert:   make(map[AlertKind]time.Time),
		now:         time.Now,
		maintenance: cfg.MaintenanceMode,
	}
}

// SetClock overrides the engine's clock. Used by tests to make cooldown
// behavior deterministic.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetMaintenance toggles maintenance mode. Gates alert emission only;
// detection state keeps updating so alerts are correct the instant
// maintenance ends. Cooldown timestamps survive the toggle, so turning
// maintenance off does not release a burst of queued-up alerts.
func (e *Engine) SetMaintenance(on bool) {
	e.maintMu.Lock()
	e.maintenance = on
	e.maintMu.Unlock()
	log.Info().Bool("maintenance", on).Msg("maintenance_toggled")
}

// Maintenance reports whether alert emission is currently suppressed.
func (e *Engine) Maintenance() bool {
	e.maintMu.RLock()
	defer e.maintMu.RUnlock()
	return e.maintenance
}

// Observe processes one record and returns zero, one or two decided
// alerts. It is synchronous, never blocks and never fails on a
// well-formed record.
func (e *Engine) Observe(rec OutcomeRecord) []Alert {
	e.records++

	// State tracking is unconditional. Gating happens at emission.
	transition, changed := e.pools.observe(rec.Pool)
	e.window.Push(rec.IsError())

	suppressed := e.Maintenance()
	now := e.now()

	var alerts []Alert

	if changed {
		kind := KindFailover
		if transition.To == e.cfg.PrimaryPool {
			kind = KindRecovery
		}
		log.Warn().
			Str("from", transition.From).
			Str("to", transition.To).
			Str("kind", string(kind)).
			Msg("pool_transition")
		if !suppressed && e.cooldownElapsed(kind, now) {
			alerts = append(alerts, e.transitionAlert(kind, transition, now))
			e.lastAlert[kind] = now
		}
	}

	if rate := e.window.Rate(); e.window.Len() >= e.cfg.MinSample && rate >= e.cfg.ErrorThreshold {
		if !suppressed && e.cooldownElapsed(KindErrorRate, now) {
			alerts = append(alerts, e.errorRateAlert(rate, now))
			e.lastAlert[KindErrorRate] = now
		}
	}

	return alerts
}

// cooldownElapsed reports whether an alert of the given kind may fire at
// time now. A kind that never alerted may always fire.
func (e *Engine) cooldownElapsed(kind AlertKind, now time.Time) bool {
	last, ok := e.lastAlert[kind]
	if !ok {
		return true
	}
	return now.Sub(last) >= e.cfg.Cooldown
}

func (e *Engine) transitionAlert(kind AlertKind, t TransitionEvent, now time.Time) Alert {
	msg := fmt.Sprintf("Traffic switched from *%s* to *%s*", t.From, t.To)
	if kind == KindRecovery {
		msg = fmt.Sprintf("Traffic returned to primary pool *%s* (was *%s*)", t.To, t.From)
	}
	return Alert{
		ID:           uuid.New().String(),
		Kind:         kind,
		Message:      msg,
		PreviousPool: t.From,
		CurrentPool:  t.To,
		Timestamp:    now,
	}
}

func (e *Engine) errorRateAlert(rate float64, now time.Time) Alert {
	return Alert{
		ID:         uuid.New().String(),
		Kind:       KindErrorRate,
		Message:    fmt.Sprintf("Error rate is *%.1f%%* (threshold: %.1f%%)", rate, e.cfg.ErrorThreshold),
		Pool:       e.pools.current,
		ErrorCount: e.window.ErrorCount(),
		ErrorRate:  rate,
		WindowSize: e.window.Len(),
		Timestamp:  now,
	}
}

// Rate returns the current windowed error percentage.
func (e *Engine) Rate() float64 { return e.window.Rate() }

// WindowLen returns how many outcomes the window currently holds.
func (e *Engine) WindowLen() int { return e.window.Len() }

// Records returns the number of records observed since startup.
func (e *Engine) Records() int64 { return e.records }
