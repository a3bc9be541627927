package database

import (
	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"taproom/internal/models"
)

var DB *gorm.DB

// InitDB initializes the database connection for the given dialect
// (sqlite3 or postgres) and migrates the schema.
func InitDB(dialect, dsn string) error {
	var err error
	DB, err = gorm.Open(dialect, dsn)
	if err != nil {
		return err
	}
	return Migrate(DB)
}

// Migrate creates or updates the schema for every entity
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Category{},
		&models.Item{},
		&models.Package{},
		&models.PackageComponent{},
		&models.Table{},
		&models.Order{},
		&models.OrderLine{},
		&models.TabSession{},
		&models.Ticket{},
	).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// CloseDB closes the database connection
func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
