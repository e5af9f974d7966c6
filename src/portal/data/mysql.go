package data

import (
	"errors"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// ErrNotFound is the store-level not-found sentinel, kept distinct from
// gorm's so callers never import gorm to check it.
var ErrNotFound = errors.New("data: record not found")

func MustMySQL(dsn string) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	return db
}
