// Package glitchgen implements anomaly.Generator: an in-process catalog
// generator and a client for a remote generation service.
package glitchgen

import (
	"fmt"
	"strings"

	"glitchex/internal/anomaly"
)

// Control is a renderable corrupted-control descriptor.
type Control struct {
	ID        string            `json:"id"`
	Asset     string            `json:"symbol"`
	Target    anomaly.Slot      `json:"slot"`
	Kind      anomaly.Variant   `json:"variant"`
	Component string            `json:"component"`
	Label     string            `json:"label"`
	Props     map[string]string `json:"props,omitempty"`
}

func (c Control) Symbol() string { return c.Asset }

func (c Control) Slot() anomaly.Slot { return c.Target }

func (c Control) Variant() anomaly.Variant { return c.Kind }

// ComponentName is the registry name a renderer uses for a slot/variant pair,
// e.g. GlitchBuyButton_Red or GlitchChart_Neon.
func ComponentName(slot anomaly.Slot, variant anomaly.Variant) string {
	var b strings.Builder
	switch slot {
	case anomaly.SlotBuy:
		b.WriteString("GlitchBuyButton_")
	case anomaly.SlotSell:
		b.WriteString("GlitchSellButton_")
	default:
		b.WriteString("GlitchChart_")
	}
	for _, part := range strings.Split(string(variant), "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

// typos are the corrupted labels a typo control cycles through.
var typos = map[anomaly.Slot][]string{
	anomaly.SlotBuy:  {"Biy", "Bye", "Buuy", "Bu y"},
	anomaly.SlotSell: {"Sel", "Cell", "Sell!!", "Sll"},
}

func label(slot anomaly.Slot, variant anomaly.Variant, symbol string, pick func(n int) int) string {
	switch slot {
	case anomaly.SlotChart:
		return fmt.Sprintf("%s / USD", symbol)
	case anomaly.SlotBuy, anomaly.SlotSell:
		if variant == anomaly.VariantTypo {
			opts := typos[slot]
			return opts[pick(len(opts))]
		}
		if slot == anomaly.SlotBuy {
			return "Buy"
		}
		return "Sell"
	}
	return ""
}

func props(slot anomaly.Slot, variant anomaly.Variant) map[string]string {
	p := map[string]string{}
	switch variant {
	case anomaly.VariantRed:
		p["color"] = "red"
	case anomaly.VariantGreen:
		p["color"] = "green"
	case anomaly.VariantJitter:
		p["animation"] = "shake"
	case anomaly.VariantGhost:
		p["visible_for"] = "3s"
	case anomaly.VariantBounce:
		p["animation"] = "bounce"
	case anomaly.VariantNoGrid:
		p["grid"] = "off"
	case anomaly.VariantNoAxis:
		p["axis"] = "off"
	case anomaly.VariantNeon:
		p["palette"] = "neon"
	case anomaly.VariantFlatline:
		p["series"] = "flat"
	case anomaly.VariantCurrency:
		p["quote"] = "JPY"
	}
	// Reverse is visually identical to a clean control.
	if len(p) == 0 && slot != anomaly.SlotChart {
		return nil
	}
	return p
}
