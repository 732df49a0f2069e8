package market

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	MicrosPerUnit = int64(1_000_000)

	DefaultStartBalanceMicros = int64(10_000) * MicrosPerUnit

	// MinPriceMicros is the hard floor every simulated price is clamped to.
	MinPriceMicros = MicrosPerUnit
	MaxPriceMicros = int64(1_000_000_000) * MicrosPerUnit
)

var (
	ErrInvalidSymbol        = errors.New("symbol must be 2-6 uppercase letters")
	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidMultiplier    = errors.New("price multiplier must be > 0")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrStopped              = errors.New("market is stopped")
)

var symbolRE = regexp.MustCompile(`^[A-Z]{2,6}$`)

func ValidateSymbol(symbol string) error {
	if !symbolRE.MatchString(strings.TrimSpace(symbol)) {
		return ErrInvalidSymbol
	}
	return nil
}

// NormalizeSymbol upper-cases and trims user input before lookup.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func UnitsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerUnit)))
}

func MicrosToUnits(v int64) float64 {
	return float64(v) / float64(MicrosPerUnit)
}

// EffectivePriceMicros applies a trade multiplier to a quoted price. The result
// never drops below one micro so a distorted trade is never free.
func EffectivePriceMicros(priceMicros int64, multiplier float64) int64 {
	eff := int64(math.Round(float64(priceMicros) * multiplier))
	if eff < 1 {
		return 1
	}
	return eff
}

func notionalMicros(priceMicros, qty int64) (int64, error) {
	if priceMicros < 0 || qty < 0 {
		return 0, fmt.Errorf("negative notional inputs")
	}
	if qty != 0 && priceMicros > math.MaxInt64/qty {
		return 0, fmt.Errorf("notional overflow")
	}
	return priceMicros * qty, nil
}

func divideMicros(totalMicros, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("division by non-positive quantity")
	}
	// Round half up.
	return (totalMicros + qty/2) / qty, nil
}

// Progress normalises balance between start and goal. Values below start map
// to 0; values past the goal exceed 1.
func Progress(balanceMicros, startMicros, goalMicros int64) float64 {
	span := goalMicros - startMicros
	if span <= 0 {
		return 0
	}
	p := float64(balanceMicros-startMicros) / float64(span)
	if p < 0 {
		return 0
	}
	return p
}
