// Package workspace manages the uncommitted draft order each operator
// assembles before checkout. Drafts live only in memory; stock is held
// through the reservation tracker and nothing touches the durable store
// until finalization.
package workspace

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"taproom/internal/apperr"
	"taproom/internal/catalog"
	"taproom/internal/pricing"
	"taproom/internal/stock"
)

// Line is one entry of a draft order. For package lines, unitHolds records
// the component stock held per single package so quantity changes can
// reserve and release exact deltas.
type Line struct {
	ID        string
	ItemID    uint
	PackageID uint
	Name      string
	Quantity  int
	UnitPrice float64
	Subtotal  float64

	unitHolds map[uint]int
}

// Workspace is one operator's in-progress draft order
type Workspace struct {
	ID          string
	OperatorID  string
	TableNumber int
	PatronName  string
	Tier        pricing.Tier
	Held        bool
	Lines       []*Line
	CreatedAt   time.Time
}

// Subtotal sums the line subtotals
func (w *Workspace) Subtotal() float64 {
	var total float64
	for _, l := range w.Lines {
		total += l.Subtotal
	}
	return total
}

func (w *Workspace) line(lineID string) *Line {
	for _, l := range w.Lines {
		if l.ID == lineID {
			return l
		}
	}
	return nil
}

// LineRef identifies what an operator wants to add: exactly one of ItemID or
// PackageID must be set.
type LineRef struct {
	ItemID    uint
	PackageID uint
	Quantity  int
}

// Manager owns every operator's drafts. Operator identity is passed
// explicitly on every call; a draft is never visible to another operator.
type Manager struct {
	mu         sync.Mutex
	byOperator map[string][]*Workspace
	catalog    catalog.Provider
	tracker    *stock.Tracker
	pricer     pricing.Resolver
	now        func() time.Time
}

// NewManager creates a workspace manager backed by the given catalog,
// tracker and price resolver.
func NewManager(cat catalog.Provider, tracker *stock.Tracker, pricer pricing.Resolver) *Manager {
	return &Manager{
		byOperator: make(map[string][]*Workspace),
		catalog:    cat,
		tracker:    tracker,
		pricer:     pricer,
		now:        time.Now,
	}
}

// Ensure returns the operator's active draft, creating one if none exists.
// Held drafts are not active, so an operator serving a second party gets a
// fresh draft while the held one keeps its reservations.
func (m *Manager) Ensure(operatorID string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.byOperator[operatorID] {
		if !ws.Held {
			return ws
		}
	}
	ws := &Workspace{
		ID:         uuid.New().String(),
		OperatorID: operatorID,
		Tier:       pricing.TierRegular,
		CreatedAt:  m.now(),
	}
	m.byOperator[operatorID] = append(m.byOperator[operatorID], ws)
	return ws
}

// Get returns one of the operator's drafts by id
func (m *Manager) Get(operatorID, wsID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(operatorID, wsID)
}

func (m *Manager) find(operatorID, wsID string) (*Workspace, error) {
	for _, ws := range m.byOperator[operatorID] {
		if ws.ID == wsID {
			return ws, nil
		}
	}
	return nil, apperr.NotFound("workspace", wsID)
}

// Attach sets the table, patron and price tier for the draft
func (m *Manager) Attach(operatorID, wsID string, table int, patron string, tier pricing.Tier) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, err := m.find(operatorID, wsID)
	if err != nil {
		return nil, err
	}
	if table > 0 {
		ws.TableNumber = table
	}
	if patron != "" {
		ws.PatronName = patron
	}
	if tier != "" {
		ws.Tier = tier
	}
	return ws, nil
}

// AddLine resolves the reference, reserves stock and merges or appends the
// line. A reservation failure leaves the workspace untouched.
func (m *Manager) AddLine(operatorID, wsID string, ref LineRef) (*Workspace, error) {
	if ref.Quantity <= 0 {
		return nil, apperr.Validationf("quantity must be positive")
	}
	if (ref.ItemID == 0) == (ref.PackageID == 0) {
		return nil, apperr.Validationf("exactly one of item or package must be referenced")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ws, err := m.find(operatorID, wsID)
	if err != nil {
		return nil, err
	}

	var line *Line
	if ref.ItemID != 0 {
		line, err = m.buildItemLine(ref, ws.Tier)
	} else {
		line, err = m.buildPackageLine(ref)
	}
	if err != nil {
		return nil, err
	}

	if err := m.reserveHolds(line.unitHolds, line.Quantity, line.Name); err != nil {
		return nil, err
	}
	m.mergeLine(ws, line)
	return ws, nil
}

func (m *Manager) buildItemLine(ref LineRef, tier pricing.Tier) (*Line, error) {
	item, err := m.catalog.GetItem(ref.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, apperr.Validationf("%s is not available", item.Name)
	}
	return &Line{
		ID:        uuid.New().String(),
		ItemID:    item.ID,
		Name:      item.Name,
		Quantity:  ref.Quantity,
		UnitPrice: m.pricer.Resolve(item, tier, m.now()),
		unitHolds: map[uint]int{item.ID: 1},
	}, nil
}

func (m *Manager) buildPackageLine(ref LineRef) (*Line, error) {
	pkg, err := m.catalog.GetPackage(ref.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.Active {
		return nil, apperr.Validationf("%s is not available", pkg.Name)
	}
	holds := make(map[uint]int, len(pkg.Components))
	for _, comp := range pkg.Components {
		holds[comp.ItemID] += comp.Quantity
	}
	return &Line{
		ID:        uuid.New().String(),
		PackageID: pkg.ID,
		Name:      pkg.Name,
		Quantity:  ref.Quantity,
		UnitPrice: pkg.Price,
		unitHolds: holds,
	}, nil
}

// reserveHolds reserves per-unit holds times qty for every item, releasing
// the partial set again when a later item fails.
func (m *Manager) reserveHolds(unitHolds map[uint]int, qty int, name string) error {
	reserved := make(map[uint]int, len(unitHolds))
	for itemID, per := range unitHolds {
		if err := m.tracker.Reserve(itemID, per*qty); err != nil {
			for id, n := range reserved {
				m.tracker.Release(id, n)
			}
			if apperr.KindOf(err) == apperr.KindOutOfStock {
				return apperr.OutOfStock(name)
			}
			return err
		}
		reserved[itemID] = per * qty
	}
	return nil
}

func (m *Manager) releaseHolds(unitHolds map[uint]int, qty int) {
	for itemID, per := range unitHolds {
		m.tracker.Release(itemID, per*qty)
	}
}

// mergeLine folds the new line into an existing one with the same reference
// and unit price, or appends it.
func (m *Manager) mergeLine(ws *Workspace, line *Line) {
	for _, l := range ws.Lines {
		if l.ItemID == line.ItemID && l.PackageID == line.PackageID && l.UnitPrice == line.UnitPrice {
			l.Quantity += line.Quantity
			l.Subtotal = l.UnitPrice * float64(l.Quantity)
			return
		}
	}
	line.Subtotal = line.UnitPrice * float64(line.Quantity)
	ws.Lines = append(ws.Lines, line)
}

// UpdateLineQuantity reserves or releases the signed delta and recomputes
// the subtotal. Zero and negative quantities are rejected; use RemoveLine.
func (m *Manager) UpdateLineQuantity(operatorID, wsID, lineID string, newQty int) (*Workspace, error) {
	if newQty <= 0 {
		return nil, apperr.Validationf("quantity must be positive; remove the line instead")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, err := m.find(operatorID, wsID)
	if err != nil {
		return nil, err
	}
	line := ws.line(lineID)
	if line == nil {
		return nil, apperr.NotFound("line", lineID)
	}

	delta := newQty - line.Quantity
	if delta > 0 {
		if err := m.reserveHolds(line.unitHolds, delta, line.Name); err != nil {
			return nil, err
		}
	} else if delta < 0 {
		m.releaseHolds(line.unitHolds, -delta)
	}
	line.Quantity = newQty
	line.Subtotal = line.UnitPrice * float64(newQty)
	return ws, nil
}

// RemoveLine releases the line's reservations and deletes it
func (m *Manager) RemoveLine(operatorID, wsID, lineID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, err := m.find(operatorID, wsID)
	if err != nil {
		return nil, err
	}
	for i, l := range ws.Lines {
		if l.ID == lineID {
			m.releaseHolds(l.unitHolds, l.Quantity)
			ws.Lines = append(ws.Lines[:i], ws.Lines[i+1:]...)
			return ws, nil
		}
	}
	return nil, apperr.NotFound("line", lineID)
}

// Clear releases every reservation and empties the draft
func (m *Manager) Clear(operatorID, wsID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, err := m.find(operatorID, wsID)
	if err != nil {
		return nil, err
	}
	for _, l := range ws.Lines {
		m.releaseHolds(l.unitHolds, l.Quantity)
	}
	ws.Lines = nil
	return ws, nil
}

// Hold parks the draft so the operator can start a fresh one. Reservations
// stay in place until the draft is resumed and cleared or finalized.
func (m *Manager) Hold(operatorID, wsID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, err := m.find(operatorID, wsID)
	if err != nil {
		return nil, err
	}
	ws.Held = true
	return ws, nil
}

// Resume makes the draft active again, parking whichever draft currently is.
// At most one draft per operator is ever active.
func (m *Manager) Resume(operatorID, wsID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, err := m.find(operatorID, wsID)
	if err != nil {
		return nil, err
	}
	for _, other := range m.byOperator[operatorID] {
		if other != ws && !other.Held {
			other.Held = true
		}
	}
	ws.Held = false
	return ws, nil
}

// Discard drops the draft without touching reservations. Finalization calls
// this after the order is persisted and its reservations are owned by the
// committed order.
func (m *Manager) Discard(operatorID, wsID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byOperator[operatorID]
	for i, ws := range list {
		if ws.ID == wsID {
			m.byOperator[operatorID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
