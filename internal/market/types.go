package market

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type PricePoint struct {
	Tick        int64 `json:"tick"`
	PriceMicros int64 `json:"price_micros"`
}

// Transaction is an immutable record of one executed trade.
type Transaction struct {
	ID              string  `json:"id"`
	Side            Side    `json:"side"`
	Symbol          string  `json:"symbol"`
	Quantity        int64   `json:"quantity"`
	UnitPriceMicros int64   `json:"unit_price_micros"`
	Multiplier      float64 `json:"multiplier"`
	Tick            int64   `json:"tick"`
	TotalMicros     int64   `json:"total_micros"`
}

type AssetView struct {
	Symbol           string       `json:"symbol"`
	PriceMicros      int64        `json:"price_micros"`
	History          []PricePoint `json:"history"`
	Holdings         int64        `json:"holdings"`
	AvgCostMicros    int64        `json:"avg_cost_micros"`
	UnrealizedMicros int64        `json:"unrealized_micros"`
}

type LedgerView struct {
	BalanceMicros      int64         `json:"balance_micros"`
	StartBalanceMicros int64         `json:"start_balance_micros"`
	Tick               int64         `json:"tick"`
	Stopped            bool          `json:"stopped"`
	Transactions       []Transaction `json:"transactions"`
}

// Shock records a rare large price swing applied during a tick.
type Shock struct {
	Symbol string
	Change float64
}

type TickReport struct {
	Tick   int64
	Shocks []Shock
}
