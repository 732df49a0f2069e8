package game

import (
	"math"
	"math/rand"
	"time"
)

type Reason string

const (
	ReasonNone     Reason = ""
	ReasonOverload Reason = "anomaly_overload"
	ReasonBankrupt Reason = "bankrupt"
	ReasonWin      Reason = "win"
)

func (r Reason) Terminal() bool {
	return r != ReasonNone
}

type DirectorConfig struct {
	GracePeriod   time.Duration
	WarningWindow time.Duration

	SpawnBase        time.Duration
	SpawnJitter      time.Duration
	SpawnJitterFloor time.Duration
	SpawnRetry       time.Duration

	// OverloadMax is the number of active slot anomalies that ends the game.
	OverloadMax int
	// CompromiseHold is how long every asset must stay corrupted before the
	// game ends.
	CompromiseHold time.Duration

	WinBalanceMicros int64
}

// Status is what the Director reads from the engine and controller.
type Status struct {
	BalanceMicros      int64
	StartBalanceMicros int64
	Active             int
	AllCovered         bool
}

// Director owns lifecycle timing and terminal-condition detection.
type Director struct {
	cfg  DirectorConfig
	rand *rand.Rand

	startedAt        time.Time
	graceEnd         time.Time
	nextSpawn        time.Time
	compromisedSince time.Time

	reason  Reason
	endedAt time.Time
}

func NewDirector(cfg DirectorConfig, rng *rand.Rand) *Director {
	return &Director{cfg: cfg, rand: rng}
}

// Start begins a run at now. The first spawn check is the end of grace.
func (d *Director) Start(now time.Time) {
	d.startedAt = now
	d.graceEnd = now.Add(d.cfg.GracePeriod)
	d.nextSpawn = d.graceEnd
	d.compromisedSince = time.Time{}
	d.reason = ReasonNone
	d.endedAt = time.Time{}
}

func (d *Director) InGrace(now time.Time) bool {
	return now.Before(d.graceEnd)
}

// Warning is raised during the final WarningWindow of the grace period.
func (d *Director) Warning(now time.Time) bool {
	return d.InGrace(now) && !now.Before(d.warningAt())
}

func (d *Director) warningAt() time.Time {
	return d.graceEnd.Add(-d.cfg.WarningWindow)
}

func (d *Director) GraceEnd() time.Time {
	return d.graceEnd
}

func (d *Director) NextSpawn() time.Time {
	return d.nextSpawn
}

func (d *Director) SpawnDue(now time.Time) bool {
	return !d.reason.Terminal() && !now.Before(d.graceEnd) && !now.Before(d.nextSpawn)
}

// ScheduleNext sets the following spawn check to base plus a random jitter
// whose window narrows as progress grows.
func (d *Director) ScheduleNext(now time.Time, progress float64) time.Duration {
	interval := d.SpawnInterval(progress)
	d.nextSpawn = now.Add(interval)
	return interval
}

func (d *Director) SpawnInterval(progress float64) time.Duration {
	p := math.Min(math.Max(progress, 0), 1)
	window := time.Duration(float64(d.cfg.SpawnJitter) * (1 - p))
	if window < d.cfg.SpawnJitterFloor {
		window = d.cfg.SpawnJitterFloor
	}
	return d.cfg.SpawnBase + time.Duration(d.rand.Float64()*float64(window))
}

// Retry pushes the next check out by the short retry delay.
func (d *Director) Retry(now time.Time) {
	d.nextSpawn = now.Add(d.cfg.SpawnRetry)
}

// Evaluate checks terminal conditions in order: anomaly overload, total
// compromise, bankruptcy, win. The first one to fire is latched and returned;
// later calls return ReasonNone without evaluating anything.
func (d *Director) Evaluate(now time.Time, st Status) Reason {
	if d.reason.Terminal() {
		return ReasonNone
	}
	if st.AllCovered {
		if d.compromisedSince.IsZero() {
			d.compromisedSince = now
		}
	} else {
		d.compromisedSince = time.Time{}
	}

	var r Reason
	switch {
	case d.cfg.OverloadMax > 0 && st.Active >= d.cfg.OverloadMax:
		r = ReasonOverload
	case !d.compromisedSince.IsZero() && now.Sub(d.compromisedSince) >= d.cfg.CompromiseHold:
		r = ReasonOverload
	case st.BalanceMicros <= 0:
		r = ReasonBankrupt
	case st.BalanceMicros >= d.cfg.WinBalanceMicros:
		r = ReasonWin
	default:
		return ReasonNone
	}
	d.reason = r
	d.endedAt = now
	return r
}

func (d *Director) Reason() Reason {
	return d.reason
}

func (d *Director) EndedAt() time.Time {
	return d.endedAt
}

// CompromisedFor is how long every asset has continuously held an anomaly.
func (d *Director) CompromisedFor(now time.Time) time.Duration {
	if d.compromisedSince.IsZero() {
		return 0
	}
	return now.Sub(d.compromisedSince)
}

// CompromiseDeadline reports when the running compromise timer expires.
func (d *Director) CompromiseDeadline() (time.Time, bool) {
	if d.compromisedSince.IsZero() {
		return time.Time{}, false
	}
	return d.compromisedSince.Add(d.cfg.CompromiseHold), true
}
