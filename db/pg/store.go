package pg

import (
	"gorm.io/gorm"

	dbt "checkmate/db/db"
)

// GORMStore is the GORM-based PostgreSQL implementation of dbt.Store.
type GORMStore struct {
	db *gorm.DB
}

// NewGORMStore creates and returns a new instance of GORMStore.
func NewGORMStore(db *gorm.DB) dbt.Store {
	return &GORMStore{
		db: db,
	}
}
