package anomaly

import (
	"errors"
	"fmt"
	"time"
)

var ErrSlotOccupied = errors.New("slot already holds an anomaly")

// Descriptor is the opaque rendering handle returned by a Generator. The core
// only needs its ownership tags.
type Descriptor interface {
	Symbol() string
	Slot() Slot
	Variant() Variant
}

type Anomaly struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Slot       Slot       `json:"slot"`
	Category   Category   `json:"category"`
	Variant    Variant    `json:"variant"`
	Severity   Severity   `json:"severity"`
	Effect     Effect     `json:"-"`
	Descriptor Descriptor `json:"descriptor,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type row [len(Slots)]*Anomaly

// Table is the asset × slot grid. Each cell is either empty (clean) or holds
// exactly one anomaly (active).
type Table struct {
	order []string
	rows  map[string]*row
}

func NewTable(symbols []string) *Table {
	t := &Table{
		order: append([]string(nil), symbols...),
		rows:  make(map[string]*row, len(symbols)),
	}
	for _, sym := range symbols {
		t.rows[sym] = &row{}
	}
	return t
}

func (t *Table) row(symbol string) *row {
	r, ok := t.rows[symbol]
	if !ok {
		panic(fmt.Sprintf("anomaly: unknown symbol %q", symbol))
	}
	return r
}

func (t *Table) Symbols() []string {
	return append([]string(nil), t.order...)
}

func (t *Table) Has(symbol string) bool {
	_, ok := t.rows[symbol]
	return ok
}

func (t *Table) Get(symbol string, slot Slot) (Anomaly, bool) {
	a := t.row(symbol)[slot.index()]
	if a == nil {
		return Anomaly{}, false
	}
	return *a, true
}

// Set activates a clean cell. An occupied cell is left untouched.
func (t *Table) Set(a Anomaly) error {
	r := t.row(a.Symbol)
	i := a.Slot.index()
	if r[i] != nil {
		return fmt.Errorf("%s/%s: %w", a.Symbol, a.Slot, ErrSlotOccupied)
	}
	cp := a
	r[i] = &cp
	return nil
}

func (t *Table) Clear(symbol string, slot Slot) bool {
	r := t.row(symbol)
	i := slot.index()
	if r[i] == nil {
		return false
	}
	r[i] = nil
	return true
}

func (t *Table) HasCategory(symbol string, cat Category) bool {
	r := t.row(symbol)
	for i, slot := range Slots {
		if r[i] != nil && slot.Category() == cat {
			return true
		}
	}
	return false
}

// ClearCategory removes every anomaly of cat on symbol and returns them.
func (t *Table) ClearCategory(symbol string, cat Category) []Anomaly {
	if !cat.valid() {
		panic(fmt.Sprintf("anomaly: %v %q", ErrUnknownCategory, string(cat)))
	}
	r := t.row(symbol)
	var removed []Anomaly
	for i, slot := range Slots {
		if r[i] != nil && slot.Category() == cat {
			removed = append(removed, *r[i])
			r[i] = nil
		}
	}
	return removed
}

func (t *Table) FreeSlots(symbol string) []Slot {
	r := t.row(symbol)
	var out []Slot
	for i, slot := range Slots {
		if r[i] == nil {
			out = append(out, slot)
		}
	}
	return out
}

func (t *Table) IsFree(symbol string, slot Slot) bool {
	return t.row(symbol)[slot.index()] == nil
}

func (t *Table) ForAsset(symbol string) []Anomaly {
	r := t.row(symbol)
	var out []Anomaly
	for _, a := range r {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

func (t *Table) All() []Anomaly {
	var out []Anomaly
	for _, sym := range t.order {
		out = append(out, t.ForAsset(sym)...)
	}
	return out
}

func (t *Table) Count() int {
	n := 0
	for _, sym := range t.order {
		for _, a := range t.rows[sym] {
			if a != nil {
				n++
			}
		}
	}
	return n
}

func (t *Table) CountAsset(symbol string) int {
	n := 0
	for _, a := range t.row(symbol) {
		if a != nil {
			n++
		}
	}
	return n
}

// Capacity is the maximum number of concurrent anomalies.
func (t *Table) Capacity() int {
	return len(t.order) * len(Slots)
}

// AllCovered reports whether every asset holds at least one anomaly.
func (t *Table) AllCovered() bool {
	if len(t.order) == 0 {
		return false
	}
	for _, sym := range t.order {
		if t.CountAsset(sym) == 0 {
			return false
		}
	}
	return true
}

func (t *Table) Reset() {
	for _, sym := range t.order {
		t.rows[sym] = &row{}
	}
}
