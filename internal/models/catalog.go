package models

import (
	"github.com/jinzhu/gorm"
)

// StockPolicy controls how strictly an item's stock level is enforced.
type StockPolicy string

const (
	// StockPolicyStrict rejects reservations that would exceed available stock
	StockPolicyStrict StockPolicy = "strict"
	// StockPolicyAdvisory reports low/out indicators but never blocks a sale
	StockPolicyAdvisory StockPolicy = "advisory"
)

// Category groups catalog items and carries their default preparation
// destination. Destination may be empty; routing falls back to a name
// heuristic in that case.
type Category struct {
	gorm.Model
	Name        string
	Destination string
	StockPolicy StockPolicy
}

// Item represents a sellable catalog entry
type Item struct {
	gorm.Model
	Name           string
	CategoryID     uint
	Category       Category
	Price          float64
	VIPPrice       float64
	HappyHourPrice float64
	Stock          int
	Active         bool
}

// Package represents a composite catalog entry fulfilled by preparing
// multiple component items
type Package struct {
	gorm.Model
	Name       string
	Price      float64
	Active     bool
	Components []PackageComponent `gorm:"foreignkey:PackageID"`
}

// PackageComponent is one entry in a package's ordered component list
type PackageComponent struct {
	gorm.Model
	PackageID uint
	ItemID    uint
	Quantity  int
	Position  int
}

// Table represents a physical table in the venue
type Table struct {
	gorm.Model
	Number   int `gorm:"unique_index"`
	Occupied bool
}
