// Package stock implements the in-memory reservation overlay that keeps
// concurrent operators from overselling limited stock. Nothing here writes
// durable stock except Commit and its reversal Restore.
package stock

import (
	"fmt"
	"log"
	"sync"

	"taproom/internal/apperr"
	"taproom/internal/catalog"
)

// Indicator summarizes an item's availability for the operator UI
type Indicator string

const (
	IndicatorInStock Indicator = "in_stock"
	IndicatorLow     Indicator = "low"
	IndicatorOut     Indicator = "out_of_stock"
)

type entry struct {
	baseline int
	reserved int
	strict   bool
}

// Tracker maintains one shared reservation counter per item. Every operator
// sees availability as baseline minus the union of all reservations, not a
// private copy.
type Tracker struct {
	mu       sync.Mutex
	items    map[uint]*entry
	provider catalog.Provider
	lowWater int
}

// NewTracker creates a tracker that commits durable deductions through
// provider. Items at or below lowWater report the low indicator.
func NewTracker(provider catalog.Provider, lowWater int) *Tracker {
	return &Tracker{
		items:    make(map[uint]*entry),
		provider: provider,
		lowWater: lowWater,
	}
}

// Initialize seeds the baseline stock from a catalog snapshot, replacing any
// previous state.
func (t *Tracker) Initialize(snapshot []catalog.StockSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[uint]*entry, len(snapshot))
	for _, s := range snapshot {
		t.items[s.ItemID] = &entry{baseline: s.Stock, strict: s.Strict}
	}
}

// get lazily creates an advisory zero-baseline entry for items added to the
// catalog after Initialize. Caller must hold t.mu.
func (t *Tracker) get(itemID uint) *entry {
	e, ok := t.items[itemID]
	if !ok {
		e = &entry{}
		t.items[itemID] = e
	}
	return e
}

// Available returns baseline minus all reservations for the item
func (t *Tracker) Available(itemID uint) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(itemID)
	return e.baseline - e.reserved
}

// Reserved returns the current shared reservation count for the item
func (t *Tracker) Reserved(itemID uint) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(itemID).reserved
}

// TotalReserved returns the sum of all reservations across all items
func (t *Tracker) TotalReserved() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, e := range t.items {
		total += e.reserved
	}
	return total
}

// Reserve places a hold of qty against the item's shared counter. For
// strictly tracked items it fails when availability is insufficient;
// advisory items always succeed. Check and update run under one lock so two
// operators racing for the last units resolve first-come-first-served.
func (t *Tracker) Reserve(itemID uint, qty int) error {
	if qty <= 0 {
		return apperr.Validationf("reserve quantity must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(itemID)
	if e.strict && e.baseline-e.reserved < qty {
		return apperr.OutOfStock(fmt.Sprintf("item %d", itemID))
	}
	e.reserved += qty
	return nil
}

// Release gives back a hold of qty. The counter clamps at zero; hitting the
// clamp is logged because it indicates a double release somewhere upstream.
func (t *Tracker) Release(itemID uint, qty int) {
	if qty <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(itemID)
	if qty > e.reserved {
		log.Printf("stock: release of %d clamped to %d for item %d (double release?)", qty, e.reserved, itemID)
		qty = e.reserved
	}
	e.reserved -= qty
}

// ResetAll clears every reservation, e.g. on cart abandonment
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.items {
		e.reserved = 0
	}
}

// Commit turns a reservation into a durable stock deduction via the catalog
// provider, clears the hold and refreshes the baseline from the store.
func (t *Tracker) Commit(itemID uint, qty int) error {
	if qty <= 0 {
		return apperr.Validationf("commit quantity must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining, err := t.provider.DeductStock(itemID, qty)
	if err != nil {
		return err
	}
	e := t.get(itemID)
	if qty > e.reserved {
		log.Printf("stock: commit of %d exceeds reservation %d for item %d", qty, e.reserved, itemID)
		e.reserved = 0
	} else {
		e.reserved -= qty
	}
	e.baseline = remaining
	return nil
}

// Restore reverses a committed deduction, e.g. when a confirmed order is
// voided. The durable increment goes through the catalog provider and the
// baseline rises with it so availability reflects the returned units.
func (t *Tracker) Restore(itemID uint, qty int) error {
	if qty <= 0 {
		return apperr.Validationf("restore quantity must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.provider.RestoreStock(itemID, qty); err != nil {
		return err
	}
	t.get(itemID).baseline += qty
	return nil
}

// IndicatorFor reports the availability indicator for the item
func (t *Tracker) IndicatorFor(itemID uint) Indicator {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(itemID)
	available := e.baseline - e.reserved
	switch {
	case available <= 0:
		return IndicatorOut
	case available <= t.lowWater:
		return IndicatorLow
	default:
		return IndicatorInStock
	}
}
