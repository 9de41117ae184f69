package monitor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backendim/poolwatch/internal/monitor"
)

// fakeClock hands out a controllable time; each Tick advances it.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time       { return c.now }
func (c *fakeClock) Tick(d time.Duration) { c.now = c.now.Add(d) }

func newEngine(t *testing.T, cfg monitor.EngineConfig) (*monitor.Engine, *fakeClock) {
	t.Helper()
	e := monitor.NewEngine(cfg)
	clock := newFakeClock()
	e.SetClock(clock.Now)
	return e, clock
}

func rec(pool string, status int) monitor.OutcomeRecord {
	return monitor.OutcomeRecord{Pool: pool, Status: status}
}

// =============================================================================
// POOL TRANSITIONS
// =============================================================================

func TestEngine_FirstRecordEmitsNoTransition(t *testing.T) {
	e, _ := newEngine(t, monitor.EngineConfig{PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 10, MinSample: 1})

	alerts := e.Observe(rec("green", 200))

	assert.Empty(t, alerts)
	assert.Equal(t, "green", e.CurrentPool())
}

func TestEngine_FailoverAndRecoveryClassification(t *testing.T) {
	e, _ := newEngine(t, monitor.EngineConfig{PrimaryPool: "blue", ErrorThreshold: 100, WindowSize: 10, MinSample: 1})

	var got []monitor.Alert
	for _, pool := range []string{"blue", "blue", "green", "green", "blue"} {
		got = append(got, e.Observe(rec(pool, 200))...)
	}

	require.Len(t, got, 2)
	assert.Equal(t, monitor.KindFailover, got[0].Kind)
	assert.Equal(t, "blue", got[0].PreviousPool)
	assert.Equal(t, "green", got[0].CurrentPool)
	assert.Equal(t, monitor.KindRecovery, got[1].Kind)
	assert.Equal(t, "green", got[1].PreviousPool)
	assert.Equal(t, "blue", got[1].CurrentPool)
}

func TestEngine_RepeatedSamePoolEmitsNothing(t *testing.T) {
	e, _ := newEngine(t, monitor.EngineConfig{PrimaryPool: "blue", ErrorThreshold: 100, WindowSize: 10, MinSample: 1})

	for i := 0; i < 20; i++ {
		assert.Empty(t, e.Observe(rec("blue", 200)))
	}
}

func TestEngine_TransitionCooldownSuppressesFlapping(t *testing.T) {
	e, clock := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 100, WindowSize: 10, MinSample: 1,
		Cooldown: 300 * time.Second,
	})

	e.Observe(rec("blue", 200))
	first := e.Observe(rec("green", 200))
	require.Len(t, first, 1)

	// Flap back and forth inside the cooldown: recovery is a distinct
	// kind so it fires once, then both kinds are in cooldown.
	clock.Tick(time.Second)
	back := e.Observe(rec("blue", 200))
	require.Len(t, back, 1)
	assert.Equal(t, monitor.KindRecovery, back[0].Kind)

	clock.Tick(time.Second)
	assert.Empty(t, e.Observe(rec("green", 200)))
	clock.Tick(time.Second)
	assert.Empty(t, e.Observe(rec("blue", 200)))

	// After the cooldown the next transition fires again.
	clock.Tick(301 * time.Second)
	again := e.Observe(rec("green", 200))
	require.Len(t, again, 1)
	assert.Equal(t, monitor.KindFailover, again[0].Kind)
}

// =============================================================================
// ERROR RATE
// =============================================================================

func TestEngine_ErrorRateFiresAtThreshold(t *testing.T) {
	e, _ := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 4, MinSample: 1,
	})

	var got []monitor.Alert
	for _, status := range []int{200, 200, 500, 500} {
		got = append(got, e.Observe(rec("blue", status))...)
	}

	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, monitor.KindErrorRate, a.Kind)
	assert.Equal(t, 2, a.ErrorCount)
	assert.InDelta(t, 50.0, a.ErrorRate, 1e-9)
	assert.Equal(t, 4, a.WindowSize)
	assert.Equal(t, "blue", a.Pool)
}

func TestEngine_ErrorRateCooldownBlocksRefire(t *testing.T) {
	e, clock := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 4, MinSample: 1,
		Cooldown: 60 * time.Second,
	})

	for _, status := range []int{200, 200, 500, 500} {
		e.Observe(rec("blue", status))
	}

	// Window slides to [200,500,500,200]: still exactly at threshold,
	// but the kind is cooling down.
	clock.Tick(time.Second)
	assert.Empty(t, e.Observe(rec("blue", 200)))
}

func TestEngine_ErrorRateZeroCooldownMayRefire(t *testing.T) {
	e, clock := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 4, MinSample: 1,
	})

	for _, status := range []int{200, 200, 500, 500} {
		e.Observe(rec("blue", status))
	}
	clock.Tick(time.Second)

	again := e.Observe(rec("blue", 200))
	require.Len(t, again, 1)
	assert.Equal(t, monitor.KindErrorRate, again[0].Kind)
}

func TestEngine_MinSampleGuardsColdWindow(t *testing.T) {
	e, _ := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 100, MinSample: 10,
	})

	// 100% error rate, but only 9 samples: below the evaluation floor.
	for i := 0; i < 9; i++ {
		assert.Empty(t, e.Observe(rec("blue", 500)))
	}

	tenth := e.Observe(rec("blue", 500))
	require.Len(t, tenth, 1)
	assert.Equal(t, monitor.KindErrorRate, tenth[0].Kind)
}

func TestEngine_TransitionAndRateCanFireOnSameRecord(t *testing.T) {
	e, _ := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 4, MinSample: 1,
	})

	e.Observe(rec("blue", 500))

	// This record both flips the pool and keeps the rate at 100%.
	got := e.Observe(rec("green", 500))
	require.Len(t, got, 2)
	assert.Equal(t, monitor.KindFailover, got[0].Kind)
	assert.Equal(t, monitor.KindErrorRate, got[1].Kind)
}

func TestEngine_CooldownsArePerKind(t *testing.T) {
	e, clock := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 4, MinSample: 1,
		Cooldown: 300 * time.Second,
	})

	// Fire an error-rate alert on the primary pool.
	first := e.Observe(rec("blue", 500))
	require.Len(t, first, 1)
	require.Equal(t, monitor.KindErrorRate, first[0].Kind)

	// A failover inside the error-rate cooldown still alerts: the
	// kinds cool down independently.
	clock.Tick(10 * time.Second)
	second := e.Observe(rec("green", 200))
	require.Len(t, second, 1)
	assert.Equal(t, monitor.KindFailover, second[0].Kind)
}

// =============================================================================
// MAINTENANCE MODE
// =============================================================================

func TestEngine_MaintenanceSuppressesEmissionNotState(t *testing.T) {
	e, _ := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 4, MinSample: 1,
		MaintenanceMode: true,
	})

	// Failover plus sustained errors during maintenance: zero alerts.
	for _, r := range []monitor.OutcomeRecord{
		rec("blue", 200), rec("green", 500), rec("green", 500), rec("blue", 500),
	} {
		assert.Empty(t, e.Observe(r))
	}

	// State kept tracking the whole time.
	assert.Equal(t, "blue", e.CurrentPool())
	assert.Equal(t, "green", e.PreviousPool())
	assert.InDelta(t, 75.0, e.Rate(), 1e-9)
	assert.Equal(t, 4, e.WindowLen())

	// The first qualifying record after maintenance ends alerts from
	// current truth, not stale state.
	e.SetMaintenance(false)
	got := e.Observe(rec("blue", 500))
	require.Len(t, got, 1)
	assert.Equal(t, monitor.KindErrorRate, got[0].Kind)
	assert.InDelta(t, 100.0, got[0].ErrorRate, 1e-9)
}

func TestEngine_MaintenanceToggleKeepsCooldowns(t *testing.T) {
	e, clock := newEngine(t, monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 50, WindowSize: 4, MinSample: 1,
		Cooldown: 300 * time.Second,
	})

	// Alert fires, then the operator enters and leaves maintenance.
	require.Len(t, e.Observe(rec("blue", 500)), 1)
	e.SetMaintenance(true)
	clock.Tick(10 * time.Second)
	e.SetMaintenance(false)

	// No burst after maintenance: the cooldown recorded before the
	// toggle still applies.
	assert.Empty(t, e.Observe(rec("blue", 500)))
}

// =============================================================================
// DETERMINISM
// =============================================================================

func TestEngine_ReplayIsDeterministic(t *testing.T) {
	input := []monitor.OutcomeRecord{
		rec("blue", 200), rec("blue", 500), rec("green", 500),
		rec("green", 200), rec("blue", 503), rec("blue", 200),
	}
	cfg := monitor.EngineConfig{
		PrimaryPool: "blue", ErrorThreshold: 40, WindowSize: 4, MinSample: 2,
		Cooldown: 5 * time.Second,
	}

	replay := func() []monitor.Alert {
		e, clock := newEngine(t, cfg)
		var out []monitor.Alert
		for _, r := range input {
			out = append(out, e.Observe(r)...)
			clock.Tick(time.Second)
		}
		return out
	}

	first := replay()
	second := replay()

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Kind, second[i].Kind)
		assert.Equal(t, first[i].Message, second[i].Message)
		assert.Equal(t, first[i].PreviousPool, second[i].PreviousPool)
		assert.Equal(t, first[i].CurrentPool, second[i].CurrentPool)
		assert.Equal(t, first[i].ErrorCount, second[i].ErrorCount)
		assert.InDelta(t, first[i].ErrorRate, second[i].ErrorRate, 1e-9)
	}
}
