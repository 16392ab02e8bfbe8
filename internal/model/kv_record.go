package model

import "time"

// KVRecord is a durable key/value row. The pending-order queue lives in a
// single record whose value is a JSON array.
type KVRecord struct {
	Key       string    `gorm:"column:record_key;primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
