// Package anomaly tracks corrupted trading controls attached to assets and
// drives their spawn and purge lifecycle.
package anomaly

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

var (
	ErrUnknownSlot     = errors.New("unknown slot")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownVariant  = errors.New("unknown variant")
)

type Slot string

const (
	SlotBuy   Slot = "buy"
	SlotSell  Slot = "sell"
	SlotChart Slot = "chart"
)

// Slots lists every control slot in table order.
var Slots = [...]Slot{SlotBuy, SlotSell, SlotChart}

func (s Slot) index() int {
	switch s {
	case SlotBuy:
		return 0
	case SlotSell:
		return 1
	case SlotChart:
		return 2
	default:
		panic(fmt.Sprintf("anomaly: %v %q", ErrUnknownSlot, string(s)))
	}
}

func (s Slot) Category() Category {
	if s == SlotChart {
		return CategoryChart
	}
	return CategoryButton
}

func ParseSlot(raw string) (Slot, error) {
	s := Slot(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SlotBuy, SlotSell, SlotChart:
		return s, nil
	}
	return "", ErrUnknownSlot
}

// Category is the coarse classification a player names when purging.
type Category string

const (
	CategoryButton Category = "button"
	CategoryChart  Category = "chart"
)

func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CategoryButton, CategoryChart:
		return c, nil
	}
	return "", ErrUnknownCategory
}

func (c Category) valid() bool {
	return c == CategoryButton || c == CategoryChart
}

type Severity int

const (
	SeverityMild Severity = iota + 1
	SeverityMedium
	SeveritySevere
)

func (s Severity) String() string {
	switch s {
	case SeverityMild:
		return "mild"
	case SeverityMedium:
		return "medium"
	case SeveritySevere:
		return "severe"
	default:
		return "unknown"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "mild":
		*s = SeverityMild
	case "medium":
		*s = SeverityMedium
	case "severe":
		*s = SeveritySevere
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

type Variant string

const (
	VariantRed      Variant = "red"
	VariantGreen    Variant = "green"
	VariantTypo     Variant = "typo"
	VariantJitter   Variant = "jitter"
	VariantGhost    Variant = "ghost"
	VariantBounce   Variant = "bounce"
	VariantReverse  Variant = "reverse"
	VariantNoGrid   Variant = "no_grid"
	VariantNoAxis   Variant = "no_axis"
	VariantNeon     Variant = "neon"
	VariantFlatline Variant = "flatline"
	VariantCurrency Variant = "currency"
)

// Effect is a behavioural side channel carried by some variants. Cosmetic
// variants have EffectNone.
type Effect int

const (
	EffectNone Effect = iota
	// EffectReverse routes a trade on the corrupted control to the opposite side.
	EffectReverse
	// EffectCurrency scales the trade multiplier on the asset.
	EffectCurrency
)

type VariantSpec struct {
	Slot     Slot     `json:"slot"`
	Variant  Variant  `json:"variant"`
	Severity Severity `json:"severity"`
	Effect   Effect   `json:"-"`
}

var catalog = []VariantSpec{
	{Slot: SlotBuy, Variant: VariantRed, Severity: SeverityMild},
	{Slot: SlotBuy, Variant: VariantTypo, Severity: SeverityMild},
	{Slot: SlotBuy, Variant: VariantJitter, Severity: SeverityMedium},
	{Slot: SlotBuy, Variant: VariantGhost, Severity: SeveritySevere},
	{Slot: SlotBuy, Variant: VariantBounce, Severity: SeveritySevere},
	{Slot: SlotBuy, Variant: VariantReverse, Severity: SeveritySevere, Effect: EffectReverse},

	{Slot: SlotSell, Variant: VariantGreen, Severity: SeverityMild},
	{Slot: SlotSell, Variant: VariantTypo, Severity: SeverityMild},
	{Slot: SlotSell, Variant: VariantReverse, Severity: SeverityMedium, Effect: EffectReverse},

	{Slot: SlotChart, Variant: VariantNoGrid, Severity: SeverityMild},
	{Slot: SlotChart, Variant: VariantNoAxis, Severity: SeverityMedium},
	{Slot: SlotChart, Variant: VariantNeon, Severity: SeverityMedium},
	{Slot: SlotChart, Variant: VariantFlatline, Severity: SeveritySevere},
	{Slot: SlotChart, Variant: VariantCurrency, Severity: SeveritySevere, Effect: EffectCurrency},
}

func Catalog() []VariantSpec {
	return append([]VariantSpec(nil), catalog...)
}

func Lookup(slot Slot, variant Variant) (VariantSpec, error) {
	for _, spec := range catalog {
		if spec.Slot == slot && spec.Variant == variant {
			return spec, nil
		}
	}
	return VariantSpec{}, fmt.Errorf("%w: %s/%s", ErrUnknownVariant, slot, variant)
}

type TierWeight struct {
	Severity Severity
	Weight   float64
}

// SeverityWeights is the spawn policy: disruption shifts toward severe
// variants as progress approaches the goal.
func SeverityWeights(progress float64) []TierWeight {
	switch {
	case progress < 0.3:
		return []TierWeight{{SeverityMild, 1}}
	case progress < 0.6:
		return []TierWeight{{SeverityMild, 0.5}, {SeverityMedium, 0.5}}
	default:
		return []TierWeight{{SeverityMedium, 0.4}, {SeveritySevere, 0.6}}
	}
}

// PickVariant draws a tier by weight, then a variant uniformly from that tier
// among the slots free reports as available. Tiers with no free candidate are
// skipped and the remaining weights renormalised.
func PickVariant(rng *rand.Rand, progress float64, free func(Slot) bool) (VariantSpec, bool) {
	type tier struct {
		weight float64
		specs  []VariantSpec
	}
	var tiers []tier
	var total float64
	for _, tw := range SeverityWeights(progress) {
		var specs []VariantSpec
		for _, spec := range catalog {
			if spec.Severity == tw.Severity && free(spec.Slot) {
				specs = append(specs, spec)
			}
		}
		if len(specs) == 0 || tw.Weight <= 0 {
			continue
		}
		tiers = append(tiers, tier{weight: tw.Weight, specs: specs})
		total += tw.Weight
	}
	if len(tiers) == 0 {
		return VariantSpec{}, false
	}
	roll := rng.Float64() * total
	chosen := tiers[len(tiers)-1]
	for _, t := range tiers {
		if roll < t.weight {
			chosen = t
			break
		}
		roll -= t.weight
	}
	return chosen.specs[rng.Intn(len(chosen.specs))], true
}
