// Package market simulates asset prices and owns the player's ledger.
package market

import (
	"fmt"
	"log/slog"
	"math/rand"

	"glitchex/internal/noise"

	"github.com/google/uuid"
)

type AssetSpec struct {
	Symbol          string
	BasePriceMicros int64
}

type Dynamics struct {
	Drift noise.DriftParams
	// DriftScale converts the [-1, 1] drift signal into a per-tick return.
	DriftScale float64
	// JitterBand is the full width of the uniform per-tick jitter.
	JitterBand float64
	ShockProb  float64
	ShockMin   float64
	ShockMax   float64
}

func DefaultDynamics() Dynamics {
	return Dynamics{
		Drift:      noise.DefaultDrift(),
		DriftScale: 0.02,
		JitterBand: 0.03,
		ShockProb:  0.05,
		ShockMin:   0.05,
		ShockMax:   0.15,
	}
}

type Config struct {
	Assets             []AssetSpec
	StartBalanceMicros int64
	HistoryLength      int
	TxLogLength        int
	Dynamics           Dynamics
}

// DefaultAssets spaces base prices by 1000 units per symbol.
func DefaultAssets(symbols ...string) []AssetSpec {
	if len(symbols) == 0 {
		symbols = []string{"BTC", "ETH", "SOL", "DOGE"}
	}
	out := make([]AssetSpec, 0, len(symbols))
	for i, sym := range symbols {
		out = append(out, AssetSpec{Symbol: sym, BasePriceMicros: int64(1000*(i+1)) * MicrosPerUnit})
	}
	return out
}

func DefaultConfig() Config {
	return Config{
		Assets:             DefaultAssets(),
		StartBalanceMicros: DefaultStartBalanceMicros,
		HistoryLength:      50,
		TxLogLength:        50,
		Dynamics:           DefaultDynamics(),
	}
}

type asset struct {
	spec          AssetSpec
	priceMicros   int64
	history       []PricePoint
	offset        float64
	holdings      int64
	avgCostMicros int64
}

// Engine advances prices and applies trades. It is not safe for concurrent use;
// a single owner goroutine drives it.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	rand  *rand.Rand
	noise *noise.Perlin

	order  []string
	assets map[string]*asset

	balanceMicros int64
	tick          int64
	txs           []Transaction
	stopped       bool
}

func NewEngine(cfg Config, rng *rand.Rand, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("at least one asset is required")
	}
	if cfg.HistoryLength < 1 {
		return nil, fmt.Errorf("history length must be >= 1")
	}
	if cfg.TxLogLength < 1 {
		return nil, fmt.Errorf("transaction log length must be >= 1")
	}
	if cfg.StartBalanceMicros <= 0 {
		return nil, fmt.Errorf("start balance must be > 0")
	}
	seen := make(map[string]struct{}, len(cfg.Assets))
	for _, a := range cfg.Assets {
		if err := ValidateSymbol(a.Symbol); err != nil {
			return nil, fmt.Errorf("asset %q: %w", a.Symbol, err)
		}
		if _, dup := seen[a.Symbol]; dup {
			return nil, fmt.Errorf("duplicate asset %q", a.Symbol)
		}
		if a.BasePriceMicros < MinPriceMicros {
			return nil, fmt.Errorf("asset %q: base price below floor", a.Symbol)
		}
		seen[a.Symbol] = struct{}{}
	}
	e := &Engine{
		cfg:   cfg,
		log:   logger,
		rand:  rng,
		noise: noise.NewPerlin(rng),
	}
	e.Reset()
	return e, nil
}

// Reset restores the initial ledger and reprices every asset from its base.
// Each asset draws a fresh phase offset.
func (e *Engine) Reset() {
	e.order = e.order[:0]
	e.assets = make(map[string]*asset, len(e.cfg.Assets))
	for _, spec := range e.cfg.Assets {
		e.order = append(e.order, spec.Symbol)
		e.assets[spec.Symbol] = &asset{
			spec:        spec,
			priceMicros: spec.BasePriceMicros,
			history:     []PricePoint{{Tick: 0, PriceMicros: spec.BasePriceMicros}},
			offset:      e.rand.Float64() * 1000,
		}
	}
	e.balanceMicros = e.cfg.StartBalanceMicros
	e.tick = 0
	e.txs = nil
	e.stopped = false
}

// Tick advances simulated time by one unit. It is a no-op once stopped.
func (e *Engine) Tick() TickReport {
	if e.stopped {
		return TickReport{Tick: e.tick}
	}
	e.tick++
	report := TickReport{Tick: e.tick}
	dyn := e.cfg.Dynamics
	for _, sym := range e.order {
		a := e.assets[sym]
		change := e.noise.Drift(e.tick, a.offset, dyn.Drift) * dyn.DriftScale
		change += (e.rand.Float64() - 0.5) * dyn.JitterBand
		if e.rand.Float64() < dyn.ShockProb {
			mag := dyn.ShockMin + e.rand.Float64()*(dyn.ShockMax-dyn.ShockMin)
			if e.rand.Float64() < 0.5 {
				mag = -mag
			}
			change += mag
			report.Shocks = append(report.Shocks, Shock{Symbol: sym, Change: mag})
			e.log.Debug("market shock", "symbol", sym, "change", mag, "tick", e.tick)
		}
		a.priceMicros = evolvePrice(a.priceMicros, change)
		a.pushHistory(PricePoint{Tick: e.tick, PriceMicros: a.priceMicros}, e.cfg.HistoryLength)
	}
	return report
}

func evolvePrice(priceMicros int64, change float64) int64 {
	next := float64(priceMicros) * (1 + change)
	if next < float64(MinPriceMicros) {
		return MinPriceMicros
	}
	if next > float64(MaxPriceMicros) {
		return MaxPriceMicros
	}
	return int64(next + 0.5)
}

func (a *asset) pushHistory(p PricePoint, limit int) {
	if len(a.history) >= limit {
		n := copy(a.history, a.history[len(a.history)-limit+1:])
		a.history = a.history[:n]
	}
	a.history = append(a.history, p)
}

// Buy debits price × quantity × multiplier. On rejection the returned error is
// one of the Err* sentinels and no state has changed.
func (e *Engine) Buy(symbol string, qty int64, multiplier float64) (Transaction, error) {
	a := e.mustAsset(symbol)
	if err := e.checkTrade(qty, multiplier); err != nil {
		return Transaction{}, err
	}
	unit := EffectivePriceMicros(a.priceMicros, multiplier)
	cost, err := notionalMicros(unit, qty)
	if err != nil {
		return Transaction{}, ErrInsufficientFunds
	}
	if e.balanceMicros < cost {
		return Transaction{}, ErrInsufficientFunds
	}
	prior, err := notionalMicros(a.avgCostMicros, a.holdings)
	if err != nil {
		return Transaction{}, ErrInvalidQuantity
	}
	avg, err := divideMicros(prior+cost, a.holdings+qty)
	if err != nil {
		return Transaction{}, ErrInvalidQuantity
	}

	e.balanceMicros -= cost
	a.holdings += qty
	a.avgCostMicros = avg
	return e.record(SideBuy, symbol, qty, unit, multiplier, cost), nil
}

// Sell credits price × quantity × multiplier. Average cost is left unchanged
// unless the position is closed.
func (e *Engine) Sell(symbol string, qty int64, multiplier float64) (Transaction, error) {
	a := e.mustAsset(symbol)
	if err := e.checkTrade(qty, multiplier); err != nil {
		return Transaction{}, err
	}
	if a.holdings < qty {
		return Transaction{}, ErrInsufficientHoldings
	}
	unit := EffectivePriceMicros(a.priceMicros, multiplier)
	revenue, err := notionalMicros(unit, qty)
	if err != nil {
		return Transaction{}, ErrInvalidQuantity
	}

	e.balanceMicros += revenue
	a.holdings -= qty
	if a.holdings == 0 {
		a.avgCostMicros = 0
	}
	return e.record(SideSell, symbol, qty, unit, multiplier, revenue), nil
}

func (e *Engine) checkTrade(qty int64, multiplier float64) error {
	if e.stopped {
		return ErrStopped
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if multiplier <= 0 {
		return ErrInvalidMultiplier
	}
	return nil
}

func (e *Engine) record(side Side, symbol string, qty, unit int64, multiplier float64, total int64) Transaction {
	tx := Transaction{
		ID:              uuid.NewString(),
		Side:            side,
		Symbol:          symbol,
		Quantity:        qty,
		UnitPriceMicros: unit,
		Multiplier:      multiplier,
		Tick:            e.tick,
		TotalMicros:     total,
	}
	// Newest first.
	e.txs = append(e.txs, Transaction{})
	copy(e.txs[1:], e.txs)
	e.txs[0] = tx
	if len(e.txs) > e.cfg.TxLogLength {
		e.txs = e.txs[:e.cfg.TxLogLength]
	}
	return tx
}

// Stop freezes the engine. Later ticks and trades are no-ops.
func (e *Engine) Stop() {
	e.stopped = true
}

func (e *Engine) Stopped() bool {
	return e.stopped
}

func (e *Engine) Has(symbol string) bool {
	_, ok := e.assets[symbol]
	return ok
}

func (e *Engine) Symbols() []string {
	return append([]string(nil), e.order...)
}

func (e *Engine) BalanceMicros() int64 {
	return e.balanceMicros
}

func (e *Engine) StartBalanceMicros() int64 {
	return e.cfg.StartBalanceMicros
}

func (e *Engine) TickCount() int64 {
	return e.tick
}

func (e *Engine) PriceMicros(symbol string) int64 {
	return e.mustAsset(symbol).priceMicros
}

// SetPriceMicros overrides the current quote. It is intended for scenario
// setup; the floor still applies.
func (e *Engine) SetPriceMicros(symbol string, priceMicros int64) {
	a := e.mustAsset(symbol)
	if priceMicros < MinPriceMicros {
		priceMicros = MinPriceMicros
	}
	a.priceMicros = priceMicros
}

func (e *Engine) Asset(symbol string) AssetView {
	a := e.mustAsset(symbol)
	market, _ := notionalMicros(a.priceMicros, a.holdings)
	cost, _ := notionalMicros(a.avgCostMicros, a.holdings)
	return AssetView{
		Symbol:           symbol,
		PriceMicros:      a.priceMicros,
		History:          append([]PricePoint(nil), a.history...),
		Holdings:         a.holdings,
		AvgCostMicros:    a.avgCostMicros,
		UnrealizedMicros: market - cost,
	}
}

func (e *Engine) Assets() []AssetView {
	out := make([]AssetView, 0, len(e.order))
	for _, sym := range e.order {
		out = append(out, e.Asset(sym))
	}
	return out
}

func (e *Engine) Ledger() LedgerView {
	return LedgerView{
		BalanceMicros:      e.balanceMicros,
		StartBalanceMicros: e.cfg.StartBalanceMicros,
		Tick:               e.tick,
		Stopped:            e.stopped,
		Transactions:       append([]Transaction(nil), e.txs...),
	}
}

func (e *Engine) mustAsset(symbol string) *asset {
	a, ok := e.assets[symbol]
	if !ok {
		panic(fmt.Sprintf("market: %v %q", ErrUnknownSymbol, symbol))
	}
	return a
}
