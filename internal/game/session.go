// Package game composes the market engine, anomaly controller and director
// into one playable session and drives it on a single goroutine.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"glitchex/internal/anomaly"
	"glitchex/internal/market"
)

var ErrGameOver = errors.New("game is over")

type Config struct {
	Market   market.Config
	Anomaly  anomaly.Config
	Director DirectorConfig
}

func DefaultConfig() Config {
	return Config{
		Market:  market.DefaultConfig(),
		Anomaly: anomaly.DefaultConfig(),
		Director: DirectorConfig{
			GracePeriod:      15 * time.Second,
			WarningWindow:    5 * time.Second,
			SpawnBase:        4 * time.Second,
			SpawnJitter:      8 * time.Second,
			SpawnJitterFloor: time.Second,
			SpawnRetry:       time.Second,
			OverloadMax:      6,
			CompromiseHold:   10 * time.Second,
			WinBalanceMicros: 25_000 * market.MicrosPerUnit,
		},
	}
}

// Metrics receives gameplay counters. A nil Metrics is replaced by a no-op.
type Metrics interface {
	ObserveTick(balanceMicros int64, active int)
	ObserveTrade(side market.Side, reversed bool, err error)
	ObserveSpawn(slot anomaly.Slot, severity anomaly.Severity, err error)
	ObservePurge(category anomaly.Category, ok bool)
	ObserveGameOver(reason Reason)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTick(int64, int)                             {}
func (nopMetrics) ObserveTrade(market.Side, bool, error)              {}
func (nopMetrics) ObserveSpawn(anomaly.Slot, anomaly.Severity, error) {}
func (nopMetrics) ObservePurge(anomaly.Category, bool)                {}
func (nopMetrics) ObserveGameOver(Reason)                             {}

// TradeResult describes an executed trade. Requested is the control the
// player used; Transaction.Side is what actually ran.
type TradeResult struct {
	Requested   market.Side        `json:"requested"`
	Reversed    bool               `json:"reversed"`
	Transaction market.Transaction `json:"transaction"`
}

type PurgeResult struct {
	Symbol   string            `json:"symbol"`
	Category anomaly.Category  `json:"category"`
	OK       bool              `json:"ok"`
	Removed  []anomaly.Anomaly `json:"removed,omitempty"`
}

// Session is not safe for concurrent use. Runner serialises access to it.
type Session struct {
	cfg     Config
	log     *slog.Logger
	metrics Metrics

	engine   *market.Engine
	ctrl     *anomaly.Controller
	director *Director

	selected string
}

func NewSession(cfg Config, gen anomaly.Generator, rng *rand.Rand, logger *slog.Logger, metrics Metrics) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Director.WinBalanceMicros <= cfg.Market.StartBalanceMicros {
		return nil, fmt.Errorf("win balance must exceed start balance")
	}
	engine, err := market.NewEngine(cfg.Market, rng, logger)
	if err != nil {
		return nil, fmt.Errorf("market engine: %w", err)
	}
	symbols := engine.Symbols()
	return &Session{
		cfg:      cfg,
		log:      logger,
		metrics:  metrics,
		engine:   engine,
		ctrl:     anomaly.NewController(cfg.Anomaly, symbols, gen, rng, logger),
		director: NewDirector(cfg.Director, rng),
		selected: symbols[0],
	}, nil
}

// Start opens the grace period at now.
func (s *Session) Start(now time.Time) {
	s.director.Start(now)
	s.log.Info("game started", "grace_end", s.director.GraceEnd(), "assets", len(s.engine.Symbols()))
}

// Restart discards all state and starts a fresh run at now.
func (s *Session) Restart(now time.Time) {
	s.engine.Reset()
	s.ctrl.Reset()
	s.selected = s.engine.Symbols()[0]
	s.Start(now)
}

func (s *Session) Results() <-chan anomaly.Result {
	return s.ctrl.Results()
}

func (s *Session) Reason() Reason {
	return s.director.Reason()
}

func (s *Session) Progress() float64 {
	return market.Progress(s.engine.BalanceMicros(), s.engine.StartBalanceMicros(), s.cfg.Director.WinBalanceMicros)
}

// Tick advances the market one step.
func (s *Session) Tick(now time.Time) market.TickReport {
	report := s.engine.Tick()
	s.evaluate(now)
	s.metrics.ObserveTick(s.engine.BalanceMicros(), s.ctrl.Count())
	return report
}

// Wake runs every timer-driven check that is due at now: stuck request
// recovery, the compromise timer and the spawn schedule.
func (s *Session) Wake(ctx context.Context, now time.Time) {
	if s.director.Reason().Terminal() {
		return
	}
	s.ctrl.CheckStuck(now)
	if s.evaluate(now) {
		return
	}
	if !s.director.SpawnDue(now) {
		return
	}
	if !s.ctrl.Ready(now) {
		s.director.Retry(now)
		return
	}
	progress := s.Progress()
	_, err := s.ctrl.Spawn(ctx, now, progress)
	if err != nil && !errors.Is(err, anomaly.ErrNoFreeSlot) {
		s.director.Retry(now)
		return
	}
	next := s.director.ScheduleNext(now, progress)
	s.log.Debug("next spawn check scheduled", "in", next.String(), "progress", progress)
}

// HandleResult feeds a generation result back into the controller.
func (s *Session) HandleResult(now time.Time, res anomaly.Result) {
	a, err := s.ctrl.Resolve(now, res)
	if errors.Is(err, anomaly.ErrStaleResult) {
		return
	}
	s.metrics.ObserveSpawn(a.Slot, a.Severity, err)
	s.evaluate(now)
}

// NextWake is the earliest time Wake has work to do.
func (s *Session) NextWake(now time.Time) (time.Time, bool) {
	if s.director.Reason().Terminal() {
		return time.Time{}, false
	}
	next := s.director.NextSpawn()
	if w := s.director.warningAt(); w.After(now) && w.Before(next) {
		next = w
	}
	if deadline, ok := s.director.CompromiseDeadline(); ok && deadline.Before(next) {
		next = deadline
	}
	if req := s.ctrl.Request(); req.Phase == anomaly.PhasePending {
		if stuck := req.IssuedAt.Add(s.cfg.Anomaly.StuckTimeout); stuck.Before(next) {
			next = stuck
		}
	}
	return next, true
}

func (s *Session) Selected() string {
	return s.selected
}

// Select changes the asset that Purge targets.
func (s *Session) Select(symbol string) error {
	sym, err := s.lookup(symbol)
	if err != nil {
		return err
	}
	s.selected = sym
	return nil
}

func (s *Session) Buy(now time.Time, symbol string, qty int64) (TradeResult, error) {
	return s.trade(now, symbol, market.SideBuy, qty)
}

func (s *Session) Sell(now time.Time, symbol string, qty int64) (TradeResult, error) {
	return s.trade(now, symbol, market.SideSell, qty)
}

func (s *Session) trade(now time.Time, symbol string, side market.Side, qty int64) (TradeResult, error) {
	sym, err := s.lookup(symbol)
	if err != nil {
		return TradeResult{}, err
	}
	route := s.ctrl.Route(sym, side)
	var tx market.Transaction
	if route.Side == market.SideBuy {
		tx, err = s.engine.Buy(sym, qty, route.Multiplier)
	} else {
		tx, err = s.engine.Sell(sym, qty, route.Multiplier)
	}
	s.metrics.ObserveTrade(route.Side, route.Reversed, err)
	if err != nil {
		return TradeResult{}, err
	}
	s.evaluate(now)
	return TradeResult{Requested: side, Reversed: route.Reversed, Transaction: tx}, nil
}

// Purge clears anomalies of category on the selected asset. A wrong guess
// reports OK=false and changes nothing.
func (s *Session) Purge(now time.Time, category string) (PurgeResult, error) {
	cat, err := anomaly.ParseCategory(category)
	if err != nil {
		return PurgeResult{}, err
	}
	if s.director.Reason().Terminal() {
		return PurgeResult{}, ErrGameOver
	}
	removed, ok := s.ctrl.Purge(s.selected, cat)
	s.metrics.ObservePurge(cat, ok)
	s.evaluate(now)
	return PurgeResult{Symbol: s.selected, Category: cat, OK: ok, Removed: removed}, nil
}

func (s *Session) status() Status {
	return Status{
		BalanceMicros:      s.engine.BalanceMicros(),
		StartBalanceMicros: s.engine.StartBalanceMicros(),
		Active:             s.ctrl.Count(),
		AllCovered:         s.ctrl.AllCovered(),
	}
}

func (s *Session) lookup(symbol string) (string, error) {
	sym := market.NormalizeSymbol(symbol)
	if err := market.ValidateSymbol(sym); err != nil {
		return "", err
	}
	if !s.engine.Has(sym) {
		return "", fmt.Errorf("%w: %s", market.ErrUnknownSymbol, sym)
	}
	return sym, nil
}

// evaluate runs the director and, on a newly latched reason, freezes the
// engine and abandons any in-flight generation request.
func (s *Session) evaluate(now time.Time) bool {
	reason := s.director.Evaluate(now, s.status())
	if !reason.Terminal() {
		return s.director.Reason().Terminal()
	}
	s.engine.Stop()
	s.ctrl.Cancel()
	s.metrics.ObserveGameOver(reason)
	s.log.Info("game over", "reason", string(reason), "balance", market.MicrosToUnits(s.engine.BalanceMicros()), "tick", s.engine.TickCount())
	return true
}
