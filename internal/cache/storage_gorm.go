package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bakery-storefront-edge/internal/model"
)

// gormStorage persists partitions in the cache_partitions / cache_entries tables.
type gormStorage struct {
	db *gorm.DB
}

// NewGormStorage returns a Storage that survives restarts.
func NewGormStorage(db *gorm.DB) Storage {
	return &gormStorage{db: db}
}

func (s *gormStorage) Open(ctx context.Context, partition string) error {
	return openPartition(s.db.WithContext(ctx), partition)
}

func openPartition(tx *gorm.DB, partition string) error {
	record := model.CachePartition{Name: partition, CreatedAt: time.Now().UTC()}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to open cache partition %q: %w", partition, err)
	}
	return nil
}

func (s *gormStorage) Partitions(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&model.CachePartition{}).
		Order("name").
		Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list cache partitions: %w", err)
	}
	return names, nil
}

func (s *gormStorage) Get(ctx context.Context, partition, key string) (*Entry, bool, error) {
	var records []model.CacheEntry
	if err := s.db.WithContext(ctx).
		Where("partition_name = ? AND request_key = ?", partition, key).
		Limit(1).
		Find(&records).Error; err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	record := records[0]

	header := make(http.Header)
	if record.Header != "" {
		if err := json.Unmarshal([]byte(record.Header), &header); err != nil {
			return nil, false, fmt.Errorf("failed to decode cached headers for %s: %w", key, err)
		}
	}
	return &Entry{
		Status:   record.Status,
		Header:   header,
		Body:     record.Body,
		StoredAt: record.StoredAt,
	}, true, nil
}

func (s *gormStorage) Set(ctx context.Context, partition, key string, entry *Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	record := model.CacheEntry{
		Partition: partition,
		Key:       key,
		Status:    entry.Status,
		Header:    string(header),
		Body:      body,
		StoredAt:  entry.StoredAt,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := openPartition(tx, partition); err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "partition_name"}, {Name: "request_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "header", "body", "stored_at"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to store cache entry %s: %w", key, err)
		}
		return nil
	})
}

func (s *gormStorage) DeletePartition(ctx context.Context, partition string) (bool, error) {
	var existed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("partition_name = ?", partition).Delete(&model.CacheEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete entries of %q: %w", partition, err)
		}
		res := tx.Where("name = ?", partition).Delete(&model.CachePartition{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete partition %q: %w", partition, res.Error)
		}
		existed = res.RowsAffected > 0
		return nil
	})
	return existed, err
}

// Close is a no-op; the *gorm.DB is owned by the caller.
func (s *gormStorage) Close() error { return nil }
