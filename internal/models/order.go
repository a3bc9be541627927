package models

import (
	"github.com/jinzhu/gorm"
)

// OrderStatus represents the possible states of a committed order
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusVoided    OrderStatus = "voided"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:     {OrderStatusConfirmed, OrderStatusVoided},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusVoided},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusVoided},
	OrderStatusReady:     {OrderStatusServed, OrderStatusVoided},
}

// Terminal reports whether no further transitions are possible
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusServed || s == OrderStatusVoided
}

// CanTransitionTo reports whether next is a legal successor state
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Next returns the forward (non-void) successor status, or "" at the end of
// the chain
func (s OrderStatus) Next() OrderStatus {
	switch s {
	case OrderStatusDraft:
		return OrderStatusConfirmed
	case OrderStatusConfirmed:
		return OrderStatusPreparing
	case OrderStatusPreparing:
		return OrderStatusReady
	case OrderStatusReady:
		return OrderStatusServed
	}
	return ""
}

// Order represents a committed customer order attached to a tab session
type Order struct {
	gorm.Model
	SessionID   uint
	TableNumber int
	OperatorID  string
	Status      OrderStatus
	Subtotal    float64
	Discount    float64
	Tax         float64
	Total       float64
	Lines       []OrderLine `gorm:"foreignkey:OrderID"`
}

// OrderLine is an immutable snapshot of a workspace line at commit time.
// Name and UnitPrice are copied so later catalog edits cannot change a
// committed order.
type OrderLine struct {
	gorm.Model
	OrderID   uint
	ItemID    *uint
	PackageID *uint
	Name      string
	Quantity  int
	UnitPrice float64
	Subtotal  float64
}
