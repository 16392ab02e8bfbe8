package model

import "time"

// CachePartition is a named, independently deletable region of the response cache.
type CachePartition struct {
	Name      string    `gorm:"primaryKey;size:128"`
	CreatedAt time.Time `gorm:"not null"`
}

// CacheEntry is one stored response, keyed by partition and request URL.
type CacheEntry struct {
	Partition string    `gorm:"column:partition_name;primaryKey;size:128"`
	Key       string    `gorm:"column:request_key;primaryKey;size:2048"`
	Status    int       `gorm:"not null"`
	Header    string    `gorm:"type:text;not null"` // JSON-encoded http.Header
	Body      []byte    `gorm:"not null"`
	StoredAt  time.Time `gorm:"not null"`
}
