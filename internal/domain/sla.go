package domain

import (
	"errors"
	"time"
)

// SLAPhase identifies which deadline clock is running for a ticket.
type SLAPhase string

const (
	// PhaseNone means the SLA profile has not been snapshotted yet
	// (portal tickets created without configuration).
	PhaseNone SLAPhase = "NONE"
	// PhaseSinSLA is permanent: the policy resolver decided SLA does not
	// apply to this ticket.
	PhaseSinSLA     SLAPhase = "SIN_SLA"
	PhaseResponse   SLAPhase = "RESPONSE"
	PhaseResolution SLAPhase = "RESOLUTION"
	PhaseCompleted  SLAPhase = "COMPLETED"
)

// SLABand buckets consumed percentage for coloring and notifications.
type SLABand string

const (
	BandNominal  SLABand = "NOMINAL"
	BandWarning  SLABand = "WARNING"
	BandCritical SLABand = "CRITICAL"
	BandBreached SLABand = "BREACHED"
)

// BandFor maps a consumed percentage to its coloring band:
// <70 nominal, [70,90) warning, [90,100) critical, >=100 breached.
func BandFor(percentage float64) SLABand {
	switch {
	case percentage >= 100:
		return BandBreached
	case percentage >= 90:
		return BandCritical
	case percentage >= 70:
		return BandWarning
	default:
		return BandNominal
	}
}

// DefaultAlertMarkers are the visual alert lines shown on SLA progress,
// independent from the coloring bands above.
var DefaultAlertMarkers = []int{50, 75, 90}

// SLAProfile is the per-ticket snapshot taken from the policy resolver at
// creation/configuration time. Later policy edits never alter it.
type SLAProfile struct {
	Applies           bool
	ResponseMinutes   int
	ResolutionMinutes int
	AlertMarkers      []int
}

// AllottedMinutes returns the budget for a phase, 0 for non-budgeted phases.
func (p SLAProfile) AllottedMinutes(phase SLAPhase) int {
	switch phase {
	case PhaseResponse:
		return p.ResponseMinutes
	case PhaseResolution:
		return p.ResolutionMinutes
	}
	return 0
}

// PauseInterval is a closed pause with its justification. Append-only.
type PauseInterval struct {
	ID     string
	Start  time.Time
	End    time.Time
	Reason string
}

var (
	ErrClockPaused    = errors.New("sla clock already paused")
	ErrClockNotPaused = errors.New("sla clock is not paused")
	ErrClockInactive  = errors.New("sla clock has no active phase")
)

// SLAClock tracks elapsed time per SLA phase. Elapsed values are pure
// functions of wall-clock now over the persisted checkpoints below; no
// background ticker advances anything.
type SLAClock struct {
	Phase SLAPhase

	ResponseStartedAt    *time.Time
	ResponseElapsedMin   *float64 // frozen when the response phase ends
	ResolutionStartedAt  *time.Time
	ResolutionElapsedMin *float64 // frozen on completion

	Paused         bool
	PauseStartedAt *time.Time
	PauseReason    string
	Pauses         []PauseInterval
}

// Active reports whether a budgeted phase is currently running.
func (c *SLAClock) Active() bool {
	return c.Phase == PhaseResponse || c.Phase == PhaseResolution
}

// StartResponse begins the response phase.
func (c *SLAClock) StartResponse(now time.Time) {
	c.Phase = PhaseResponse
	c.ResponseStartedAt = &now
}

// BeginResolution freezes the response phase (if it was running) and starts
// the resolution clock. An open pause is closed at the boundary so it cannot
// span two phases.
func (c *SLAClock) BeginResolution(now time.Time) {
	if c.Phase == PhaseResponse && c.ResponseStartedAt != nil {
		c.closeOpenPause(now)
		elapsed := c.runningElapsed(*c.ResponseStartedAt, now)
		c.ResponseElapsedMin = &elapsed
	}
	c.Phase = PhaseResolution
	c.ResolutionStartedAt = &now
}

// Complete freezes whichever phase is running and marks the clock finished.
// Cancellation can complete a clock still in its response phase.
func (c *SLAClock) Complete(now time.Time) {
	switch c.Phase {
	case PhaseResponse:
		if c.ResponseStartedAt != nil {
			c.closeOpenPause(now)
			elapsed := c.runningElapsed(*c.ResponseStartedAt, now)
			c.ResponseElapsedMin = &elapsed
		}
	case PhaseResolution:
		if c.ResolutionStartedAt != nil {
			c.closeOpenPause(now)
			elapsed := c.runningElapsed(*c.ResolutionStartedAt, now)
			c.ResolutionElapsedMin = &elapsed
		}
	}
	c.Phase = PhaseCompleted
}

// Pause stops time accumulation. The justification is mandatory but
// validated by the caller; here only clock-state rules apply.
func (c *SLAClock) Pause(now time.Time, reason string) error {
	if !c.Active() {
		return ErrClockInactive
	}
	if c.Paused {
		return ErrClockPaused
	}
	c.Paused = true
	c.PauseStartedAt = &now
	c.PauseReason = reason
	return nil
}

// Resume closes the open pause interval and restarts time accumulation.
func (c *SLAClock) Resume(now time.Time) error {
	if !c.Active() {
		return ErrClockInactive
	}
	if !c.Paused {
		return ErrClockNotPaused
	}
	c.closeOpenPause(now)
	return nil
}

func (c *SLAClock) closeOpenPause(now time.Time) {
	if c.Paused && c.PauseStartedAt != nil {
		c.Pauses = append(c.Pauses, PauseInterval{
			Start:  *c.PauseStartedAt,
			End:    now,
			Reason: c.PauseReason,
		})
	}
	c.Paused = false
	c.PauseStartedAt = nil
	c.PauseReason = ""
}

// Elapsed returns consumed minutes for a phase, excluding paused intervals.
// Monotonically non-decreasing while unpaused, flat while paused.
func (c *SLAClock) Elapsed(phase SLAPhase, now time.Time) float64 {
	switch phase {
	case PhaseResponse:
		if c.ResponseElapsedMin != nil {
			return *c.ResponseElapsedMin
		}
		if c.ResponseStartedAt == nil {
			return 0
		}
		return c.runningElapsed(*c.ResponseStartedAt, now)
	case PhaseResolution:
		if c.ResolutionElapsedMin != nil {
			return *c.ResolutionElapsedMin
		}
		if c.ResolutionStartedAt == nil {
			return 0
		}
		return c.runningElapsed(*c.ResolutionStartedAt, now)
	}
	return 0
}

// Percentage returns elapsed/allotted*100, deliberately unbounded above 100
// so breach magnitude stays visible. Presentation clamps for progress bars.
func (c *SLAClock) Percentage(profile SLAProfile, phase SLAPhase, now time.Time) float64 {
	allotted := profile.AllottedMinutes(phase)
	if allotted <= 0 {
		return 0
	}
	return c.Elapsed(phase, now) / float64(allotted) * 100
}

// Remaining returns allotted-elapsed minutes. Negative on overrun; never
// floored to zero.
func (c *SLAClock) Remaining(profile SLAProfile, phase SLAPhase, now time.Time) float64 {
	return float64(profile.AllottedMinutes(phase)) - c.Elapsed(phase, now)
}

// Deadline is the nominal phase limit: phase start plus the allotted budget.
// It is never adjusted for pauses; combine with Remaining for the true limit.
func (c *SLAClock) Deadline(profile SLAProfile, phase SLAPhase) *time.Time {
	var start *time.Time
	switch phase {
	case PhaseResponse:
		start = c.ResponseStartedAt
	case PhaseResolution:
		start = c.ResolutionStartedAt
	}
	if start == nil {
		return nil
	}
	deadline := start.Add(time.Duration(profile.AllottedMinutes(phase)) * time.Minute)
	return &deadline
}

func (c *SLAClock) runningElapsed(start, now time.Time) float64 {
	if !now.After(start) {
		return 0
	}
	elapsed := now.Sub(start)
	for _, pause := range c.Pauses {
		elapsed -= overlap(pause.Start, pause.End, start, now)
	}
	if c.Paused && c.PauseStartedAt != nil && now.After(*c.PauseStartedAt) {
		elapsed -= now.Sub(maxTime(*c.PauseStartedAt, start))
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Minutes()
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := maxTime(aStart, bStart)
	end := aEnd
	if end.After(bEnd) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
