package market

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, rand.New(rand.NewSource(7)), nil)
	require.NoError(t, err)
	return e
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no assets", func(c *Config) { c.Assets = nil }},
		{"bad symbol", func(c *Config) { c.Assets = []AssetSpec{{Symbol: "btc", BasePriceMicros: MicrosPerUnit}} }},
		{"duplicate", func(c *Config) {
			c.Assets = []AssetSpec{{Symbol: "BTC", BasePriceMicros: MicrosPerUnit}, {Symbol: "BTC", BasePriceMicros: MicrosPerUnit}}
		}},
		{"zero history", func(c *Config) { c.HistoryLength = 0 }},
		{"zero tx log", func(c *Config) { c.TxLogLength = 0 }},
		{"zero balance", func(c *Config) { c.StartBalanceMicros = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := NewEngine(cfg, rand.New(rand.NewSource(1)), nil)
			require.Error(t, err)
		})
	}
}

func TestDefaultAssetsSpacing(t *testing.T) {
	assets := DefaultAssets()
	require.Len(t, assets, 4)
	for i, a := range assets {
		assert.Equal(t, int64(1000*(i+1))*MicrosPerUnit, a.BasePriceMicros, a.Symbol)
	}
}

func TestTickKeepsPricesAboveFloor(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Dynamics.ShockProb = 1
		c.Dynamics.ShockMin = 0.99
		c.Dynamics.ShockMax = 0.99
	})
	for i := 0; i < 500; i++ {
		e.Tick()
		for _, a := range e.Assets() {
			require.GreaterOrEqual(t, a.PriceMicros, MinPriceMicros, "tick %d %s", i, a.Symbol)
		}
	}
}

func TestTickRecordsShocks(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.Dynamics.ShockProb = 1 })
	report := e.Tick()
	assert.Equal(t, int64(1), report.Tick)
	require.Len(t, report.Shocks, 4)
	for _, s := range report.Shocks {
		mag := s.Change
		if mag < 0 {
			mag = -mag
		}
		assert.GreaterOrEqual(t, mag, 0.05)
		assert.LessOrEqual(t, mag, 0.15)
	}
}

func TestHistoryIsBoundedFIFO(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.HistoryLength = 5 })
	require.Len(t, e.Asset("BTC").History, 1)
	for i := 0; i < 20; i++ {
		e.Tick()
	}
	hist := e.Asset("BTC").History
	require.Len(t, hist, 5)
	for i, p := range hist {
		assert.Equal(t, int64(16+i), p.Tick)
	}
	assert.Equal(t, e.PriceMicros("BTC"), hist[len(hist)-1].PriceMicros)
}

func TestBuyScenario(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetPriceMicros("BTC", 100*MicrosPerUnit)

	tx, err := e.Buy("BTC", 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 9_900*MicrosPerUnit, e.BalanceMicros())
	view := e.Asset("BTC")
	assert.Equal(t, int64(1), view.Holdings)
	assert.Equal(t, 100*MicrosPerUnit, view.AvgCostMicros)

	ledger := e.Ledger()
	require.Len(t, ledger.Transactions, 1)
	assert.Equal(t, tx, ledger.Transactions[0])
	assert.Equal(t, SideBuy, tx.Side)
	assert.Equal(t, 100*MicrosPerUnit, tx.TotalMicros)
	assert.Equal(t, 100*MicrosPerUnit, tx.UnitPriceMicros)
	assert.NotEmpty(t, tx.ID)
}

func TestBuyRejectedWhenCostExceedsBalance(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetPriceMicros("ETH", 5_001*MicrosPerUnit)

	_, err := e.Buy("ETH", 2, 1)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, DefaultStartBalanceMicros, e.BalanceMicros())
	assert.Zero(t, e.Asset("ETH").Holdings)
	assert.Empty(t, e.Ledger().Transactions)
}

func TestSellRejectedWithoutHoldings(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Sell("SOL", 1, 1)
	require.ErrorIs(t, err, ErrInsufficientHoldings)
	assert.Equal(t, DefaultStartBalanceMicros, e.BalanceMicros())
	assert.Empty(t, e.Ledger().Transactions)

	e.SetPriceMicros("SOL", 10*MicrosPerUnit)
	_, err = e.Buy("SOL", 2, 1)
	require.NoError(t, err)
	_, err = e.Sell("SOL", 3, 1)
	require.ErrorIs(t, err, ErrInsufficientHoldings)
	assert.Equal(t, int64(2), e.Asset("SOL").Holdings)
}

func TestInvalidTradeArguments(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Buy("BTC", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = e.Sell("BTC", -1, 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = e.Buy("BTC", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidMultiplier)
}

func TestRoundTripRestoresBalance(t *testing.T) {
	for _, mult := range []float64{1, 0.01, 1.5} {
		e := newTestEngine(t, nil)
		e.SetPriceMicros("DOGE", 123*MicrosPerUnit)
		before := e.BalanceMicros()

		_, err := e.Buy("DOGE", 3, mult)
		require.NoError(t, err)
		_, err = e.Sell("DOGE", 3, mult)
		require.NoError(t, err)

		assert.Equal(t, before, e.BalanceMicros(), "mult=%f", mult)
		assert.Zero(t, e.Asset("DOGE").Holdings)
		assert.Zero(t, e.Asset("DOGE").AvgCostMicros)
	}
}

func TestAverageCostWeightedAndStableOnSell(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetPriceMicros("BTC", 100*MicrosPerUnit)
	_, err := e.Buy("BTC", 2, 1)
	require.NoError(t, err)
	e.SetPriceMicros("BTC", 200*MicrosPerUnit)
	_, err = e.Buy("BTC", 3, 1)
	require.NoError(t, err)

	// (2*100 + 3*200) / 5
	assert.Equal(t, 160*MicrosPerUnit, e.Asset("BTC").AvgCostMicros)

	e.SetPriceMicros("BTC", 50*MicrosPerUnit)
	_, err = e.Sell("BTC", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 160*MicrosPerUnit, e.Asset("BTC").AvgCostMicros)
	assert.Equal(t, int64(1), e.Asset("BTC").Holdings)
}

func TestMultiplierAppliedToUnitPrice(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetPriceMicros("ETH", 2_000*MicrosPerUnit)
	tx, err := e.Buy("ETH", 1, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 20*MicrosPerUnit, tx.UnitPriceMicros)
	assert.Equal(t, 0.01, tx.Multiplier)
	assert.Equal(t, DefaultStartBalanceMicros-20*MicrosPerUnit, e.BalanceMicros())
}

func TestTransactionLogNewestFirstAndBounded(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.TxLogLength = 3 })
	e.SetPriceMicros("BTC", MicrosPerUnit)
	var last Transaction
	for i := 0; i < 5; i++ {
		tx, err := e.Buy("BTC", int64(i+1), 1)
		require.NoError(t, err)
		last = tx
	}
	txs := e.Ledger().Transactions
	require.Len(t, txs, 3)
	assert.Equal(t, last.ID, txs[0].ID)
	assert.Equal(t, int64(5), txs[0].Quantity)
	assert.Equal(t, int64(3), txs[2].Quantity)
}

func TestStopFreezesEngine(t *testing.T) {
	e := newTestEngine(t, nil)
	e.Tick()
	e.Stop()
	price := e.PriceMicros("BTC")

	report := e.Tick()
	assert.Equal(t, int64(1), report.Tick)
	assert.Equal(t, price, e.PriceMicros("BTC"))
	assert.True(t, e.Ledger().Stopped)

	_, err := e.Buy("BTC", 1, 1)
	assert.ErrorIs(t, err, ErrStopped)
	_, err = e.Sell("BTC", 1, 1)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestResetRestoresInitialState(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetPriceMicros("BTC", 10*MicrosPerUnit)
	_, err := e.Buy("BTC", 5, 1)
	require.NoError(t, err)
	e.Tick()
	e.Stop()

	e.Reset()
	assert.False(t, e.Stopped())
	assert.Zero(t, e.TickCount())
	assert.Equal(t, DefaultStartBalanceMicros, e.BalanceMicros())
	assert.Empty(t, e.Ledger().Transactions)
	view := e.Asset("BTC")
	assert.Zero(t, view.Holdings)
	assert.Equal(t, 1000*MicrosPerUnit, view.PriceMicros)
	assert.Len(t, view.History, 1)
}

func TestUnknownSymbolPanics(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.False(t, e.Has("XRP"))
	assert.Panics(t, func() { _, _ = e.Buy("XRP", 1, 1) })
	assert.Panics(t, func() { e.Asset("XRP") })
}
