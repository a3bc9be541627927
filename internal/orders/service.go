// Package orders converts operator drafts into persisted, state-machine
// governed orders and owns the tab sessions that aggregate them.
package orders

import (
	"fmt"
	"log"
	"sync"

	"github.com/jinzhu/gorm"

	"taproom/internal/apperr"
	"taproom/internal/broadcast"
	"taproom/internal/catalog"
	"taproom/internal/models"
	"taproom/internal/monitoring"
	"taproom/internal/routing"
	"taproom/internal/stock"
	"taproom/internal/workspace"
)

// Service finalizes workspaces, drives the order and session state machines
// and invokes routing and broadcast after successful mutations.
type Service struct {
	db         *gorm.DB
	catalog    catalog.Provider
	tracker    *stock.Tracker
	router     *routing.Engine
	hub        *broadcast.Hub
	workspaces *workspace.Manager
	taxRate    float64

	seqMu sync.Mutex
}

// NewService wires the finalization service
func NewService(db *gorm.DB, cat catalog.Provider, tracker *stock.Tracker, router *routing.Engine,
	hub *broadcast.Hub, workspaces *workspace.Manager, taxRate float64) *Service {
	return &Service{
		db:         db,
		catalog:    cat,
		tracker:    tracker,
		router:     router,
		hub:        hub,
		workspaces: workspaces,
		taxRate:    taxRate,
	}
}

// FinalizeRequest carries the checkout parameters for a workspace
type FinalizeRequest struct {
	OperatorID  string
	WorkspaceID string
	TableNumber int
	PatronName  string
	Confirm     bool // send to preparation immediately
}

// Finalize converts a workspace into a persisted order attached to the
// table's open session (created when none exists). With Confirm set the
// order is committed to preparation: reservations become durable stock
// deductions and station tickets are routed.
func (s *Service) Finalize(req FinalizeRequest) (*models.Order, error) {
	ws, err := s.workspaces.Get(req.OperatorID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if len(ws.Lines) == 0 {
		return nil, apperr.Validationf("workspace has no lines")
	}
	table := req.TableNumber
	if table == 0 {
		table = ws.TableNumber
	}
	if table <= 0 {
		return nil, apperr.Validationf("a table number is required")
	}
	patron := req.PatronName
	if patron == "" {
		patron = ws.PatronName
	}

	// Time may have passed since the individual adds, so every line is
	// revalidated against the live catalog.
	if err := s.revalidate(ws); err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		session, err := s.resolveSession(tx, table, patron)
		if err != nil {
			return err
		}
		order = s.buildOrder(ws, session, table, req.OperatorID)
		if err := tx.Create(order).Error; err != nil {
			return apperr.Persistence(err)
		}
		return s.recomputeSessionTotals(tx, session.ID)
	})
	if err != nil {
		return nil, err
	}

	// The committed order now owns the reservations; the draft is gone.
	s.workspaces.Discard(req.OperatorID, req.WorkspaceID)
	s.publish(broadcast.OperatorTopic(req.OperatorID), "workspace", req.WorkspaceID, "finalized")
	s.publish(broadcast.SessionTopic(order.SessionID), "order", itoa(order.ID), "created")

	if req.Confirm {
		return s.Confirm(order.ID)
	}
	return s.Get(order.ID)
}

func (s *Service) buildOrder(ws *workspace.Workspace, session *models.TabSession, table int, operatorID string) *models.Order {
	order := &models.Order{
		SessionID:   session.ID,
		TableNumber: table,
		OperatorID:  operatorID,
		Status:      models.OrderStatusDraft,
	}
	for _, l := range ws.Lines {
		line := models.OrderLine{
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		}
		if l.ItemID != 0 {
			id := l.ItemID
			line.ItemID = &id
		}
		if l.PackageID != 0 {
			id := l.PackageID
			line.PackageID = &id
		}
		order.Lines = append(order.Lines, line)
		order.Subtotal += l.Subtotal
	}
	order.Tax = round2(order.Subtotal * s.taxRate)
	order.Total = order.Subtotal - order.Discount + order.Tax
	return order
}

func (s *Service) revalidate(ws *workspace.Workspace) error {
	for _, l := range ws.Lines {
		if l.ItemID != 0 {
			item, err := s.catalog.GetItem(l.ItemID)
			if err != nil {
				return err
			}
			if !item.Active {
				return apperr.Validationf("%s is no longer available", item.Name)
			}
			continue
		}
		pkg, err := s.catalog.GetPackage(l.PackageID)
		if err != nil {
			return err
		}
		if !pkg.Active {
			return apperr.Validationf("%s is no longer available", pkg.Name)
		}
	}
	return nil
}

// Confirm moves a saved order into preparation: the guarded draft->confirmed
// transition, durable stock commit, ticket routing, session totals and
// broadcast.
func (s *Service) Confirm(orderID uint) (*models.Order, error) {
	order, err := s.Get(orderID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(order, models.OrderStatusConfirmed); err != nil {
		return nil, err
	}

	// Reservation -> real deduction for every line. A failed commit is
	// logged and the remaining lines still commit; the reservation stays in
	// place for reconciliation.
	for _, line := range order.Lines {
		for itemID, qty := range s.lineHolds(&line) {
			if err := s.tracker.Commit(itemID, qty); err != nil {
				log.Printf("orders: stock commit failed for item %d x%d on order %d: %v", itemID, qty, order.ID, err)
			}
		}
	}

	tickets := s.router.Expand(order)
	for _, tk := range tickets {
		if err := s.db.Create(tk).Error; err != nil {
			log.Printf("orders: failed to persist ticket %s: %v", tk.UID, err)
			continue
		}
		monitoring.TicketsRouted.WithLabelValues(tk.Destination).Inc()
		s.publish(broadcast.StationTopic(tk.Destination), "ticket", tk.UID, "created")
	}

	if err := s.recomputeSessionTotals(s.db, order.SessionID); err != nil {
		return nil, err
	}
	monitoring.OrdersConfirmed.Inc()
	monitoring.ActiveReservations.Set(float64(s.tracker.TotalReserved()))
	s.publish(broadcast.SessionTopic(order.SessionID), "order", itoa(order.ID), "confirmed")
	return s.Get(orderID)
}

// Advance moves an order one step along confirmed->preparing->ready->served
func (s *Service) Advance(orderID uint) (*models.Order, error) {
	order, err := s.Get(orderID)
	if err != nil {
		return nil, err
	}
	next := order.Status.Next()
	if next == "" || next == models.OrderStatusConfirmed {
		return nil, apperr.InvalidTransition("order", string(order.Status), "advanced")
	}
	if err := s.transition(order, next); err != nil {
		return nil, err
	}
	if err := s.recomputeSessionTotals(s.db, order.SessionID); err != nil {
		return nil, err
	}
	s.publish(broadcast.SessionTopic(order.SessionID), "order", itoa(order.ID), string(next))
	return s.Get(orderID)
}

// Void cancels an order from any non-terminal state. Committed stock
// deductions are reversed, draft reservations are released, and outstanding
// tickets are cancelled.
func (s *Service) Void(orderID uint) (*models.Order, error) {
	order, err := s.Get(orderID)
	if err != nil {
		return nil, err
	}
	prior := order.Status
	if err := s.transition(order, models.OrderStatusVoided); err != nil {
		return nil, err
	}

	for _, line := range order.Lines {
		for itemID, qty := range s.lineHolds(&line) {
			if prior == models.OrderStatusDraft {
				s.tracker.Release(itemID, qty)
			} else if err := s.tracker.Restore(itemID, qty); err != nil {
				log.Printf("orders: stock restore failed for item %d x%d on order %d: %v", itemID, qty, order.ID, err)
			}
		}
	}

	if prior != models.OrderStatusDraft {
		err := s.db.Model(&models.Ticket{}).
			Where("order_id = ? AND status NOT IN (?)", order.ID,
				[]models.TicketStatus{models.TicketStatusServed, models.TicketStatusVoided}).
			Update("status", models.TicketStatusVoided).Error
		if err != nil {
			log.Printf("orders: failed to cancel tickets for order %d: %v", order.ID, err)
		}
	}

	if err := s.recomputeSessionTotals(s.db, order.SessionID); err != nil {
		return nil, err
	}
	monitoring.OrdersVoided.Inc()
	monitoring.ActiveReservations.Set(float64(s.tracker.TotalReserved()))
	s.publish(broadcast.SessionTopic(order.SessionID), "order", itoa(order.ID), "voided")
	return s.Get(orderID)
}

// Get fetches an order with its lines
func (s *Service) Get(orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.Preload("Lines").First(&order, orderID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("order", orderID)
		}
		return nil, apperr.Persistence(err)
	}
	return &order, nil
}

// transition performs a guarded compare-and-swap status update so two racing
// callers cannot both apply the same move.
func (s *Service) transition(order *models.Order, next models.OrderStatus) error {
	if !order.Status.CanTransitionTo(next) {
		return apperr.InvalidTransition("order", string(order.Status), string(next))
	}
	res := s.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Update("status", next)
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.InvalidTransition("order", string(order.Status), string(next))
	}
	order.Status = next
	return nil
}

// lineHolds maps an order line onto the stock units it holds, expanding
// package lines through their component list.
func (s *Service) lineHolds(line *models.OrderLine) map[uint]int {
	holds := make(map[uint]int)
	if line.ItemID != nil {
		holds[*line.ItemID] = line.Quantity
		return holds
	}
	if line.PackageID == nil {
		return holds
	}
	pkg, err := s.catalog.GetPackage(*line.PackageID)
	if err != nil {
		log.Printf("orders: cannot expand holds for package %d: %v", *line.PackageID, err)
		return holds
	}
	for _, comp := range pkg.Components {
		holds[comp.ItemID] += comp.Quantity * line.Quantity
	}
	return holds
}

// publish is fire-and-forget; broadcast must never fail a mutation
func (s *Service) publish(topic, entity, entityID, change string) {
	s.hub.Publish(topic, broadcast.Event{Entity: entity, EntityID: entityID, Change: change})
}

func itoa(id uint) string { return fmt.Sprintf("%d", id) }

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
