package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clockEpoch = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func newRunningClock() *SLAClock {
	clock := &SLAClock{}
	clock.StartResponse(clockEpoch)
	return clock
}

func TestSLAClock_ElapsedMonotoneWhileUnpaused(t *testing.T) {
	clock := newRunningClock()

	previous := -1.0
	for i := 0; i <= 120; i += 15 {
		elapsed := clock.Elapsed(PhaseResponse, clockEpoch.Add(minutes(i)))
		assert.GreaterOrEqual(t, elapsed, previous)
		previous = elapsed
	}
	assert.InDelta(t, 120.0, previous, 1e-9)
}

func TestSLAClock_ElapsedFlatWhilePaused(t *testing.T) {
	clock := newRunningClock()

	require.NoError(t, clock.Pause(clockEpoch.Add(minutes(40)), "esperando repuesto"))

	atPause := clock.Elapsed(PhaseResponse, clockEpoch.Add(minutes(40)))
	during := clock.Elapsed(PhaseResponse, clockEpoch.Add(minutes(90)))
	assert.InDelta(t, 40.0, atPause, 1e-9)
	assert.InDelta(t, atPause, during, 1e-9)
}

func TestSLAClock_PauseResumeImmediateIsNoOp(t *testing.T) {
	clock := newRunningClock()
	now := clockEpoch.Add(minutes(25))

	before := clock.Elapsed(PhaseResponse, now)
	require.NoError(t, clock.Pause(now, "doble click"))
	require.NoError(t, clock.Resume(now))
	after := clock.Elapsed(PhaseResponse, now)

	assert.InDelta(t, before, after, 1e-9)
	require.Len(t, clock.Pauses, 1)
	assert.Equal(t, clock.Pauses[0].Start, clock.Pauses[0].End)
}

func TestSLAClock_PauseStateErrors(t *testing.T) {
	clock := newRunningClock()
	now := clockEpoch.Add(minutes(10))

	require.NoError(t, clock.Pause(now, "espera"))
	assert.ErrorIs(t, clock.Pause(now.Add(minutes(1)), "otra"), ErrClockPaused)

	require.NoError(t, clock.Resume(now.Add(minutes(5))))
	assert.ErrorIs(t, clock.Resume(now.Add(minutes(6))), ErrClockNotPaused)

	inactive := &SLAClock{Phase: PhaseSinSLA}
	assert.ErrorIs(t, inactive.Pause(now, "espera"), ErrClockInactive)
}

func TestSLAClock_PercentageUnclamped(t *testing.T) {
	profile := SLAProfile{Applies: true, ResponseMinutes: 60, ResolutionMinutes: 240}
	clock := newRunningClock()

	now := clockEpoch.Add(minutes(90))
	assert.InDelta(t, 150.0, clock.Percentage(profile, PhaseResponse, now), 1e-9)
	assert.InDelta(t, -30.0, clock.Remaining(profile, PhaseResponse, now), 1e-9)
	assert.Equal(t, BandBreached, BandFor(clock.Percentage(profile, PhaseResponse, now)))
}

func TestSLAClock_PhaseBoundaryFreezesResponse(t *testing.T) {
	// Budgets {response:60, resolution:240}: after 45 unpaused minutes the
	// response phase sits at 75%; taking the ticket freezes it there and
	// starts resolution at 0%.
	profile := SLAProfile{Applies: true, ResponseMinutes: 60, ResolutionMinutes: 240}
	clock := newRunningClock()

	taken := clockEpoch.Add(minutes(45))
	assert.InDelta(t, 75.0, clock.Percentage(profile, PhaseResponse, taken), 1e-9)
	assert.Equal(t, BandWarning, BandFor(clock.Percentage(profile, PhaseResponse, taken)))

	clock.BeginResolution(taken)

	later := taken.Add(minutes(500))
	assert.InDelta(t, 75.0, clock.Percentage(profile, PhaseResponse, later), 1e-9)
	assert.InDelta(t, 0.0, clock.Elapsed(PhaseResolution, taken), 1e-9)
	assert.InDelta(t, 500.0, clock.Elapsed(PhaseResolution, later), 1e-9)
}

func TestSLAClock_ResolutionPauseScenario(t *testing.T) {
	// 100 minutes into a 240-minute resolution budget, paused 30 minutes
	// waiting on the customer, then 50 more working minutes.
	profile := SLAProfile{Applies: true, ResponseMinutes: 60, ResolutionMinutes: 240}
	clock := newRunningClock()
	clock.BeginResolution(clockEpoch)

	pausedAt := clockEpoch.Add(minutes(100))
	require.NoError(t, clock.Pause(pausedAt, "esperando respuesta del cliente"))

	midPause := pausedAt.Add(minutes(15))
	assert.InDelta(t, 100.0/240.0*100.0, clock.Percentage(profile, PhaseResolution, midPause), 1e-9)

	resumedAt := pausedAt.Add(minutes(30))
	require.NoError(t, clock.Resume(resumedAt))

	final := resumedAt.Add(minutes(50))
	assert.InDelta(t, 150.0, clock.Elapsed(PhaseResolution, final), 1e-9)
	assert.InDelta(t, 62.5, clock.Percentage(profile, PhaseResolution, final), 1e-9)
}

func TestSLAClock_DeadlineIgnoresPauses(t *testing.T) {
	profile := SLAProfile{Applies: true, ResponseMinutes: 60, ResolutionMinutes: 240}
	clock := newRunningClock()

	require.NoError(t, clock.Pause(clockEpoch.Add(minutes(10)), "espera"))
	require.NoError(t, clock.Resume(clockEpoch.Add(minutes(50))))

	deadline := clock.Deadline(profile, PhaseResponse)
	require.NotNil(t, deadline)
	assert.Equal(t, clockEpoch.Add(minutes(60)), *deadline)
}

func TestSLAClock_CompleteFreezesResolution(t *testing.T) {
	profile := SLAProfile{Applies: true, ResponseMinutes: 60, ResolutionMinutes: 240}
	clock := newRunningClock()
	clock.BeginResolution(clockEpoch.Add(minutes(30)))

	resolvedAt := clockEpoch.Add(minutes(30 + 80))
	clock.Complete(resolvedAt)

	assert.Equal(t, PhaseCompleted, clock.Phase)
	assert.InDelta(t, 80.0, clock.Elapsed(PhaseResolution, resolvedAt.Add(minutes(999))), 1e-9)
	assert.InDelta(t, 80.0/240.0*100.0, clock.Percentage(profile, PhaseResolution, resolvedAt.Add(minutes(999))), 1e-9)
}

func TestBandFor_Boundaries(t *testing.T) {
	assert.Equal(t, BandNominal, BandFor(0))
	assert.Equal(t, BandNominal, BandFor(69.99))
	assert.Equal(t, BandWarning, BandFor(70))
	assert.Equal(t, BandWarning, BandFor(89.99))
	assert.Equal(t, BandCritical, BandFor(90))
	assert.Equal(t, BandCritical, BandFor(99.99))
	assert.Equal(t, BandBreached, BandFor(100))
	assert.Equal(t, BandBreached, BandFor(150))
}
