package anomaly

import (
	"math/rand"
	"testing"
	"time"
)

func TestSlotCategory(t *testing.T) {
	tests := []struct {
		slot Slot
		want Category
	}{
		{SlotBuy, CategoryButton},
		{SlotSell, CategoryButton},
		{SlotChart, CategoryChart},
	}
	for _, tc := range tests {
		if got := tc.slot.Category(); got != tc.want {
			t.Fatalf("slot=%s got=%s want=%s", tc.slot, got, tc.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	if c, err := ParseCategory(" Button "); err != nil || c != CategoryButton {
		t.Fatalf("got %q %v", c, err)
	}
	if _, err := ParseCategory("sell"); err == nil {
		t.Fatalf("expected unknown category error")
	}
	if _, err := ParseSlot("wheel"); err == nil {
		t.Fatalf("expected unknown slot error")
	}
}

func TestCatalogCoversEverySlotInEveryBand(t *testing.T) {
	for _, progress := range []float64{0, 0.45, 0.9} {
		for _, slot := range Slots {
			only := func(s Slot) bool { return s == slot }
			if _, ok := PickVariant(rand.New(rand.NewSource(1)), progress, only); !ok {
				t.Fatalf("progress=%f has no variant for slot %s", progress, slot)
			}
		}
	}
}

func TestPickVariantTracksProgress(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	all := func(Slot) bool { return true }

	for i := 0; i < 500; i++ {
		spec, _ := PickVariant(rng, 0.1, all)
		if spec.Severity != SeverityMild {
			t.Fatalf("low progress picked %s", spec.Severity)
		}
	}

	seen := map[Severity]int{}
	for i := 0; i < 500; i++ {
		spec, _ := PickVariant(rng, 0.45, all)
		seen[spec.Severity]++
	}
	if seen[SeveritySevere] != 0 || seen[SeverityMild] == 0 || seen[SeverityMedium] == 0 {
		t.Fatalf("mid progress distribution %v", seen)
	}

	seen = map[Severity]int{}
	currency := 0
	for i := 0; i < 2000; i++ {
		spec, _ := PickVariant(rng, 0.8, all)
		seen[spec.Severity]++
		if spec.Effect == EffectCurrency {
			currency++
		}
	}
	if seen[SeverityMild] != 0 || seen[SeveritySevere] == 0 {
		t.Fatalf("high progress distribution %v", seen)
	}
	if currency == 0 {
		t.Fatalf("currency variant never drawn at high progress")
	}
}

func TestPickVariantNoFreeSlot(t *testing.T) {
	if _, ok := PickVariant(rand.New(rand.NewSource(1)), 0.5, func(Slot) bool { return false }); ok {
		t.Fatalf("expected no variant")
	}
}

func TestLookup(t *testing.T) {
	spec, err := Lookup(SlotChart, VariantCurrency)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Effect != EffectCurrency || spec.Severity != SeveritySevere {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if _, err := Lookup(SlotSell, VariantNeon); err == nil {
		t.Fatalf("expected unknown variant error")
	}
}

func TestTableSetRejectsOccupiedSlot(t *testing.T) {
	tbl := NewTable([]string{"BTC"})
	if err := tbl.Set(Anomaly{Symbol: "BTC", Slot: SlotBuy, Variant: VariantRed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tbl.Set(Anomaly{Symbol: "BTC", Slot: SlotBuy, Variant: VariantTypo}); err == nil {
		t.Fatalf("expected occupied error")
	}
	a, _ := tbl.Get("BTC", SlotBuy)
	if a.Variant != VariantRed {
		t.Fatalf("occupied slot was overwritten: %s", a.Variant)
	}
	if tbl.Count() != 1 || tbl.Capacity() != 3 {
		t.Fatalf("count=%d capacity=%d", tbl.Count(), tbl.Capacity())
	}
}

func TestTableAllCovered(t *testing.T) {
	tbl := NewTable([]string{"BTC", "ETH"})
	if tbl.AllCovered() {
		t.Fatalf("empty table reported covered")
	}
	_ = tbl.Set(Anomaly{Symbol: "BTC", Slot: SlotChart})
	if tbl.AllCovered() {
		t.Fatalf("half table reported covered")
	}
	_ = tbl.Set(Anomaly{Symbol: "ETH", Slot: SlotSell})
	if !tbl.AllCovered() {
		t.Fatalf("expected covered")
	}
	tbl.Clear("ETH", SlotSell)
	if tbl.AllCovered() {
		t.Fatalf("cleared asset still counted")
	}
}

func TestRequestStateReady(t *testing.T) {
	t0 := time.Unix(0, 0)
	var r RequestState
	if !r.Ready(t0) {
		t.Fatalf("idle state must be ready")
	}
	r.issue(Request{Token: 1}, t0, nil)
	if r.Ready(t0.Add(time.Hour)) {
		t.Fatalf("pending state must not be ready")
	}
	if !r.Matches(1) || r.Matches(2) {
		t.Fatalf("token matching broken")
	}
	r.settle(8 * time.Second)
	if r.Ready(t0.Add(7 * time.Second)) {
		t.Fatalf("cooldown ended early")
	}
	if !r.Ready(t0.Add(8 * time.Second)) {
		t.Fatalf("cooldown did not end")
	}
	if r.Matches(1) {
		t.Fatalf("settled request still matches")
	}
}
