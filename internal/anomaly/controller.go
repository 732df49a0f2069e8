package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"glitchex/internal/market"

	"github.com/google/uuid"
)

var (
	ErrNotReady           = errors.New("generation request in flight or cooling down")
	ErrNoFreeSlot         = errors.New("no free slot on any asset")
	ErrStaleResult        = errors.New("stale generation result")
	ErrGeneration         = errors.New("anomaly generation failed")
	ErrDescriptorMismatch = errors.New("descriptor does not match request")
)

// Generator produces corrupted-control descriptors. Implementations may block
// for a long time and must honour ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (Descriptor, error)
}

type Result struct {
	Token      uint64
	Descriptor Descriptor
	Err        error
}

// CurrencyPolicy configures the currency variant's hidden distortion.
type CurrencyPolicy struct {
	Divisor float64
	Buy     bool
	Sell    bool
}

func (p CurrencyPolicy) applies(side market.Side) bool {
	if side == market.SideBuy {
		return p.Buy
	}
	return p.Sell
}

type Config struct {
	RequestGap   time.Duration
	StuckTimeout time.Duration
	Currency     CurrencyPolicy
}

func DefaultConfig() Config {
	return Config{
		RequestGap:   8 * time.Second,
		StuckTimeout: 15 * time.Second,
		Currency:     CurrencyPolicy{Divisor: 100, Buy: true, Sell: true},
	}
}

// Controller owns the anomaly table and the generation request lifecycle. Like
// market.Engine it is driven from one goroutine; only Generate calls run
// elsewhere, and their results come back through Results.
type Controller struct {
	cfg  Config
	gen  Generator
	log  *slog.Logger
	rand *rand.Rand

	table   *Table
	req     RequestState
	token   uint64
	results chan Result
}

func NewController(cfg Config, symbols []string, gen Generator, rng *rand.Rand, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Currency.Divisor <= 0 {
		cfg.Currency.Divisor = 1
	}
	return &Controller{
		cfg:     cfg,
		gen:     gen,
		log:     logger,
		rand:    rng,
		table:   NewTable(symbols),
		results: make(chan Result, 4),
	}
}

// Results delivers completed generation calls. The owner must feed each value
// back through Resolve.
func (c *Controller) Results() <-chan Result {
	return c.results
}

func (c *Controller) Ready(now time.Time) bool {
	return c.req.Ready(now)
}

func (c *Controller) Request() RequestState {
	return c.req
}

// Spawn picks an asset with a free slot and a variant for the current
// progress, then issues an asynchronous generation request. ctx bounds the
// request's lifetime in addition to the stuck timeout.
func (c *Controller) Spawn(ctx context.Context, now time.Time, progress float64) (Request, error) {
	if !c.req.Ready(now) {
		return Request{}, ErrNotReady
	}
	var eligible []string
	for _, sym := range c.table.Symbols() {
		if len(c.table.FreeSlots(sym)) > 0 {
			eligible = append(eligible, sym)
		}
	}
	if len(eligible) == 0 {
		return Request{}, ErrNoFreeSlot
	}
	sym := eligible[c.rand.Intn(len(eligible))]
	spec, ok := PickVariant(c.rand, progress, func(s Slot) bool { return c.table.IsFree(sym, s) })
	if !ok {
		return Request{}, ErrNoFreeSlot
	}

	c.token++
	req := Request{
		Token:    c.token,
		Symbol:   sym,
		Slot:     spec.Slot,
		Variant:  spec.Variant,
		Severity: spec.Severity,
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.req.issue(req, now, cancel)
	c.log.Info("anomaly request sent",
		"token", req.Token, "symbol", req.Symbol, "slot", req.Slot,
		"variant", req.Variant, "severity", req.Severity.String())

	go func(gen Generator, out chan<- Result) {
		desc, err := gen.Generate(reqCtx, req)
		if reqCtx.Err() != nil {
			return
		}
		select {
		case out <- Result{Token: req.Token, Descriptor: desc, Err: err}:
		case <-reqCtx.Done():
		}
	}(c.gen, c.results)
	return req, nil
}

// Resolve applies a generation result. Results for anything but the current
// pending request are dropped with ErrStaleResult. Success and failure both
// move the lifecycle into cooldown.
func (c *Controller) Resolve(now time.Time, res Result) (Anomaly, error) {
	if !c.req.Matches(res.Token) {
		c.log.Debug("stale anomaly result dropped", "token", res.Token)
		return Anomaly{}, ErrStaleResult
	}
	req := c.req.Target
	c.req.settle(c.cfg.RequestGap)

	if res.Err != nil {
		c.log.Warn("anomaly generation failed", "token", req.Token, "symbol", req.Symbol, "err", res.Err)
		return Anomaly{}, fmt.Errorf("%w: %v", ErrGeneration, res.Err)
	}
	d := res.Descriptor
	if d == nil || d.Symbol() != req.Symbol || d.Slot() != req.Slot {
		c.log.Warn("anomaly descriptor mismatch", "token", req.Token, "symbol", req.Symbol, "slot", req.Slot)
		return Anomaly{}, ErrDescriptorMismatch
	}
	spec, err := Lookup(d.Slot(), d.Variant())
	if err != nil {
		c.log.Warn("anomaly descriptor variant unknown", "token", req.Token, "variant", d.Variant())
		return Anomaly{}, fmt.Errorf("%w: %v", ErrDescriptorMismatch, err)
	}

	a := Anomaly{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Slot:       spec.Slot,
		Category:   spec.Slot.Category(),
		Variant:    spec.Variant,
		Severity:   spec.Severity,
		Effect:     spec.Effect,
		Descriptor: d,
		CreatedAt:  now,
	}
	if err := c.table.Set(a); err != nil {
		return Anomaly{}, err
	}
	c.log.Info("anomaly assigned", "symbol", a.Symbol, "slot", a.Slot, "variant", a.Variant, "active", c.table.Count())
	return a, nil
}

// CheckStuck cancels a request that has been pending longer than the stuck
// timeout and returns the lifecycle to idle.
func (c *Controller) CheckStuck(now time.Time) bool {
	if c.req.Phase != PhasePending || now.Sub(c.req.IssuedAt) < c.cfg.StuckTimeout {
		return false
	}
	c.log.Warn("anomaly request stuck, resetting", "token", c.req.Target.Token, "pending_for", now.Sub(c.req.IssuedAt).String())
	c.req.abort()
	return true
}

// Purge clears every anomaly of cat on symbol. It succeeds only when at least
// one such anomaly exists; anomalies of the other category are never touched.
func (c *Controller) Purge(symbol string, cat Category) ([]Anomaly, bool) {
	if !c.table.HasCategory(symbol, cat) {
		c.log.Info("purge missed", "symbol", symbol, "category", cat)
		return nil, false
	}
	removed := c.table.ClearCategory(symbol, cat)
	c.log.Info("purge succeeded", "symbol", symbol, "category", cat, "removed", len(removed))
	return removed, true
}

// Cancel abandons an in-flight request without touching the table. Its
// result, if any, is dropped as stale.
func (c *Controller) Cancel() {
	if c.req.Phase == PhasePending {
		c.req.abort()
	}
}

// Reset cancels any pending request and clears the table.
func (c *Controller) Reset() {
	c.req.abort()
	c.table.Reset()
}

// Routing is the outcome of applying active anomaly effects to a trade.
type Routing struct {
	Side       market.Side
	Multiplier float64
	Reversed   bool
}

// Route resolves which side a trade on the named control actually executes
// and the price multiplier the engine must apply.
func (c *Controller) Route(symbol string, side market.Side) Routing {
	r := Routing{Side: side, Multiplier: 1}
	slot := SlotBuy
	if side == market.SideSell {
		slot = SlotSell
	}
	if a, ok := c.table.Get(symbol, slot); ok && a.Effect == EffectReverse {
		r.Side = side.Opposite()
		r.Reversed = true
	}
	if a, ok := c.table.Get(symbol, SlotChart); ok && a.Effect == EffectCurrency && c.cfg.Currency.applies(r.Side) {
		r.Multiplier = 1 / c.cfg.Currency.Divisor
	}
	return r
}

func (c *Controller) Table() *Table {
	return c.table
}

func (c *Controller) Count() int {
	return c.table.Count()
}

func (c *Controller) AllCovered() bool {
	return c.table.AllCovered()
}

func (c *Controller) ForAsset(symbol string) []Anomaly {
	return c.table.ForAsset(symbol)
}

func (c *Controller) All() []Anomaly {
	return c.table.All()
}
