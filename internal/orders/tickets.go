package orders

import (
	"log"
	"time"

	"github.com/jinzhu/gorm"

	"taproom/internal/apperr"
	"taproom/internal/broadcast"
	"taproom/internal/models"
)

// AdvanceTicket moves a ticket one step along pending->preparing->ready->
// served, stamping the transition time. Ticket progress cascades into the
// parent order: the first started ticket puts the order into preparing, and
// the order becomes ready/served when every ticket has.
func (s *Service) AdvanceTicket(ticketID uint) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.db.First(&ticket, ticketID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("ticket", ticketID)
		}
		return nil, apperr.Persistence(err)
	}

	next := ticket.Status.Next()
	if next == "" {
		return nil, apperr.InvalidTransition("ticket", string(ticket.Status), "next")
	}

	now := time.Now()
	updates := map[string]interface{}{"status": next}
	switch next {
	case models.TicketStatusPreparing:
		updates["started_at"] = &now
	case models.TicketStatusReady:
		updates["ready_at"] = &now
	case models.TicketStatusServed:
		updates["served_at"] = &now
	}
	res := s.db.Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticket.ID, ticket.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.InvalidTransition("ticket", string(ticket.Status), string(next))
	}
	ticket.Status = next

	s.cascadeTicketProgress(&ticket, next)
	s.publish(broadcast.StationTopic(ticket.Destination), "ticket", ticket.UID, string(next))

	if err := s.db.First(&ticket, ticketID).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return &ticket, nil
}

// cascadeTicketProgress nudges the parent order's status from aggregate
// ticket state. Cascade failures only log; the ticket transition itself has
// already committed.
func (s *Service) cascadeTicketProgress(ticket *models.Ticket, next models.TicketStatus) {
	order, err := s.Get(ticket.OrderID)
	if err != nil {
		log.Printf("orders: ticket %s has no loadable order: %v", ticket.UID, err)
		return
	}

	switch next {
	case models.TicketStatusPreparing:
		if order.Status == models.OrderStatusConfirmed {
			if err := s.transition(order, models.OrderStatusPreparing); err != nil {
				log.Printf("orders: cascade to preparing failed for order %d: %v", order.ID, err)
				return
			}
			s.publish(broadcast.SessionTopic(order.SessionID), "order", itoa(order.ID), string(order.Status))
		}
	case models.TicketStatusReady:
		if order.Status == models.OrderStatusPreparing && s.allTicketsAtLeast(order.ID, models.TicketStatusReady) {
			if err := s.transition(order, models.OrderStatusReady); err != nil {
				log.Printf("orders: cascade to ready failed for order %d: %v", order.ID, err)
				return
			}
			s.publish(broadcast.SessionTopic(order.SessionID), "order", itoa(order.ID), string(order.Status))
		}
	case models.TicketStatusServed:
		if order.Status == models.OrderStatusReady && s.allTicketsAtLeast(order.ID, models.TicketStatusServed) {
			if err := s.transition(order, models.OrderStatusServed); err != nil {
				log.Printf("orders: cascade to served failed for order %d: %v", order.ID, err)
				return
			}
			s.publish(broadcast.SessionTopic(order.SessionID), "order", itoa(order.ID), string(order.Status))
		}
	}
}

// allTicketsAtLeast reports whether every non-voided ticket of the order has
// reached floor (or beyond).
func (s *Service) allTicketsAtLeast(orderID uint, floor models.TicketStatus) bool {
	var tickets []models.Ticket
	if err := s.db.Where("order_id = ?", orderID).Find(&tickets).Error; err != nil {
		log.Printf("orders: failed to load tickets for order %d: %v", orderID, err)
		return false
	}
	rank := map[models.TicketStatus]int{
		models.TicketStatusPending:   0,
		models.TicketStatusPreparing: 1,
		models.TicketStatusReady:     2,
		models.TicketStatusServed:    3,
	}
	for _, t := range tickets {
		if t.Status == models.TicketStatusVoided {
			continue
		}
		if rank[t.Status] < rank[floor] {
			return false
		}
	}
	return true
}

// StationTickets returns the outstanding queue for one destination. Tickets
// marked "both" appear in every station's queue.
func (s *Service) StationTickets(destination string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.Where("(destination = ? OR destination = ?) AND status NOT IN (?)",
		destination, models.DestinationBoth,
		[]models.TicketStatus{models.TicketStatusServed, models.TicketStatusVoided}).
		Order("created_at").
		Find(&tickets).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return tickets, nil
}
