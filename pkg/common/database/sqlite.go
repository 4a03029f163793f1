package database

import (
	"fmt"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var memorySeq atomic.Int64

// OpenSQLiteMemory opens a private in-memory database. Used by tests and by
// single-node deployments that run without PostgreSQL. Each call returns an
// isolated database; the shared cache keeps it alive across pooled
// connections.
func OpenSQLiteMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:mem%d?mode=memory&cache=shared", memorySeq.Add(1))
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}
