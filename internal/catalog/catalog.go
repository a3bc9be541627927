// Package catalog exposes the item/package definitions the coordination core
// reads, plus the two durable stock mutations it is allowed to make.
package catalog

import (
	"github.com/jinzhu/gorm"

	"taproom/internal/apperr"
	"taproom/internal/models"
)

// Provider is the snapshot interface consumed by the tracker, the workspace
// manager and the routing engine.
type Provider interface {
	GetItem(id uint) (*models.Item, error)
	GetPackage(id uint) (*models.Package, error)
	DeductStock(id uint, qty int) (remaining int, err error)
	RestoreStock(id uint, qty int) error
}

// StockSnapshot seeds the reservation tracker's baseline for one item
type StockSnapshot struct {
	ItemID uint
	Stock  int
	Strict bool
}

// Store implements Provider over the durable store
type Store struct {
	db *gorm.DB
}

// NewStore creates a catalog store backed by db
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetItem fetches one item with its category
func (s *Store) GetItem(id uint) (*models.Item, error) {
	var item models.Item
	if err := s.db.Preload("Category").First(&item, id).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("item", id)
		}
		return nil, apperr.Persistence(err)
	}
	return &item, nil
}

// GetPackage fetches one package with its ordered component list
func (s *Store) GetPackage(id uint) (*models.Package, error) {
	var pkg models.Package
	err := s.db.Preload("Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).First(&pkg, id).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, apperr.NotFound("package", id)
		}
		return nil, apperr.Persistence(err)
	}
	return &pkg, nil
}

// Snapshot returns the current stock baseline for every active item
func (s *Store) Snapshot() ([]StockSnapshot, error) {
	var items []models.Item
	if err := s.db.Preload("Category").Where("active = ?", true).Find(&items).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	out := make([]StockSnapshot, 0, len(items))
	for _, it := range items {
		out = append(out, StockSnapshot{
			ItemID: it.ID,
			Stock:  it.Stock,
			Strict: it.Category.StockPolicy == models.StockPolicyStrict,
		})
	}
	return out, nil
}

// DeductStock durably decrements an item's stock and returns the new level.
// The decrement is a single row-level atomic write.
func (s *Store) DeductStock(id uint, qty int) (int, error) {
	res := s.db.Model(&models.Item{}).Where("id = ?", id).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return 0, apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, apperr.NotFound("item", id)
	}
	var item models.Item
	if err := s.db.First(&item, id).Error; err != nil {
		return 0, apperr.Persistence(err)
	}
	return item.Stock, nil
}

// RestoreStock reverses a committed deduction, e.g. when an order is voided
func (s *Store) RestoreStock(id uint, qty int) error {
	res := s.db.Model(&models.Item{}).Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("item", id)
	}
	return nil
}
