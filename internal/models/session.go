package models

import (
	"github.com/jinzhu/gorm"
)

// SessionStatus represents the possible states of a tab session
type SessionStatus string

const (
	SessionStatusOpen      SessionStatus = "open"
	SessionStatusClosed    SessionStatus = "closed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether the session can no longer change
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusClosed || s == SessionStatusAbandoned
}

// TabSession aggregates the committed orders of one table visit. Totals are
// recomputed from the non-voided orders on every confirm, modification and
// void rather than patched incrementally.
type TabSession struct {
	gorm.Model
	Number      string `gorm:"unique_index"`
	Status      SessionStatus
	TableNumber int
	PatronName  string
	Subtotal    float64
	Total       float64
	Orders      []Order `gorm:"foreignkey:SessionID"`
}
