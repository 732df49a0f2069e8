package game

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"glitchex/internal/anomaly"
	"glitchex/internal/market"
)

type SimOptions struct {
	TickEvery time.Duration
	// MaxTicks bounds a run that never reaches a terminal state.
	MaxTicks int
	// PurgeAccuracy is the chance the bot names the right category.
	PurgeAccuracy float64
	// ResultWait bounds how long the simulation waits, in real time, for a
	// pending generation result before moving virtual time on.
	ResultWait time.Duration
	Start      time.Time
}

func DefaultSimOptions() SimOptions {
	return SimOptions{
		TickEvery:     2 * time.Second,
		MaxTicks:      2_000,
		PurgeAccuracy: 0.5,
		ResultWait:    time.Second,
		Start:         time.Unix(0, 0).UTC(),
	}
}

type SimReport struct {
	Reason        Reason        `json:"reason"`
	Ticks         int64         `json:"ticks"`
	Elapsed       time.Duration `json:"elapsed"`
	BalanceMicros int64         `json:"balance_micros"`
	Trades        int           `json:"trades"`
	Rejected      int           `json:"rejected"`
	Reversed      int           `json:"reversed"`
	Spawned       int           `json:"spawned"`
	PurgeHits     int           `json:"purge_hits"`
	PurgeMisses   int           `json:"purge_misses"`
	PeakActive    int           `json:"peak_active"`
}

// Simulate plays s on a virtual clock with a naive bot until the game ends,
// MaxTicks pass or ctx is done. Each market tick the bot focuses the asset with
// the most anomalies, buys dips, sells rallies and attempts one purge.
func Simulate(ctx context.Context, s *Session, rng *rand.Rand, opts SimOptions) (SimReport, error) {
	if opts.TickEvery <= 0 {
		return SimReport{}, errors.New("tick interval must be > 0")
	}
	now := opts.Start
	s.Start(now)
	nextTick := now.Add(opts.TickEvery)
	var rep SimReport

	for ticks := 0; ticks < opts.MaxTicks && !s.Reason().Terminal(); {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		wakeAt, hasWake := s.NextWake(now)
		if hasWake && wakeAt.Before(nextTick) {
			if wakeAt.After(now) {
				now = wakeAt
			}
			s.Wake(ctx, now)
		} else {
			now = nextTick
			nextTick = now.Add(opts.TickEvery)
			s.Tick(now)
			ticks++
			botTurn(now, s, rng, opts, &rep)
		}
		if s.ctrl.Request().Phase == anomaly.PhasePending {
			drainResult(ctx, now, s, opts.ResultWait, &rep)
		}
		if n := s.ctrl.Count(); n > rep.PeakActive {
			rep.PeakActive = n
		}
	}

	rep.Reason = s.Reason()
	rep.Ticks = s.engine.TickCount()
	rep.Elapsed = now.Sub(opts.Start)
	rep.BalanceMicros = s.engine.BalanceMicros()
	return rep, nil
}

func drainResult(ctx context.Context, now time.Time, s *Session, wait time.Duration, rep *SimReport) {
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case res := <-s.Results():
		before := s.ctrl.Count()
		s.HandleResult(now, res)
		if s.ctrl.Count() > before {
			rep.Spawned++
		}
	case <-t.C:
	case <-ctx.Done():
	}
}

func botTurn(now time.Time, s *Session, rng *rand.Rand, opts SimOptions, rep *SimReport) {
	if s.Reason().Terminal() {
		return
	}
	focus := s.selected
	most := -1
	for _, sym := range s.engine.Symbols() {
		if n := s.ctrl.Table().CountAsset(sym); n > most {
			focus, most = sym, n
		}
	}
	if most == 0 {
		syms := s.engine.Symbols()
		focus = syms[int(s.engine.TickCount())%len(syms)]
	}
	_ = s.Select(focus)

	if most > 0 {
		guess := anomaly.CategoryButton
		right := s.ctrl.Table().HasCategory(focus, anomaly.CategoryButton)
		if !right {
			guess = anomaly.CategoryChart
		}
		if rng.Float64() >= opts.PurgeAccuracy {
			guess = other(guess)
		}
		if res, err := s.Purge(now, string(guess)); err == nil {
			if res.OK {
				rep.PurgeHits++
			} else {
				rep.PurgeMisses++
			}
		}
	}

	view := s.engine.Asset(focus)
	mean := meanPrice(view.History)
	switch {
	case view.Holdings > 0 && view.PriceMicros > view.AvgCostMicros+view.AvgCostMicros/50:
		record(rep, func() (TradeResult, error) { return s.Sell(now, focus, view.Holdings) })
	case view.PriceMicros < mean-mean/100:
		budget := s.engine.BalanceMicros() / 4
		if qty := budget / view.PriceMicros; qty > 0 {
			record(rep, func() (TradeResult, error) { return s.Buy(now, focus, qty) })
		}
	}
}

func record(rep *SimReport, trade func() (TradeResult, error)) {
	res, err := trade()
	if err != nil {
		rep.Rejected++
		return
	}
	rep.Trades++
	if res.Reversed {
		rep.Reversed++
	}
}

func other(c anomaly.Category) anomaly.Category {
	if c == anomaly.CategoryButton {
		return anomaly.CategoryChart
	}
	return anomaly.CategoryButton
}

func meanPrice(points []market.PricePoint) int64 {
	if len(points) == 0 {
		return 0
	}
	var sum int64
	for _, p := range points {
		sum += p.PriceMicros
	}
	return sum / int64(len(points))
}
