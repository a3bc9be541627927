package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// Preparation destinations. DestinationBoth marks a single item that needs
// action at two stations at once; whole packages never route as "both".
const (
	DestinationKitchen = "kitchen"
	DestinationBar     = "bar"
	DestinationBoth    = "both"
)

// TicketStatus represents the possible states of a station work ticket
type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusPreparing TicketStatus = "preparing"
	TicketStatusReady     TicketStatus = "ready"
	TicketStatusServed    TicketStatus = "served"
	TicketStatusVoided    TicketStatus = "voided"
)

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending:   {TicketStatusPreparing, TicketStatusVoided},
	TicketStatusPreparing: {TicketStatusReady, TicketStatusVoided},
	TicketStatusReady:     {TicketStatusServed, TicketStatusVoided},
}

// Terminal reports whether no further transitions are possible
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusServed || s == TicketStatusVoided
}

// CanTransitionTo reports whether next is a legal successor state
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, n := range ticketTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Next returns the forward (non-void) successor status, or "" at the end of
// the chain
func (s TicketStatus) Next() TicketStatus {
	switch s {
	case TicketStatusPending:
		return TicketStatusPreparing
	case TicketStatusPreparing:
		return TicketStatusReady
	case TicketStatusReady:
		return TicketStatusServed
	}
	return ""
}

// Ticket is one routed unit of preparation work. Name is always the name of
// what the station actually prepares: for a package component that is the
// component's own name, with the parent package recorded in PackageName and
// the per-package multiplier in PackageQty.
type Ticket struct {
	gorm.Model
	UID         string `gorm:"unique_index"`
	OrderID     uint
	OrderLineID uint
	Destination string
	Name        string
	Quantity    int
	PackageName string
	PackageQty  int
	Status      TicketStatus
	StartedAt   *time.Time
	ReadyAt     *time.Time
	ServedAt    *time.Time
}
