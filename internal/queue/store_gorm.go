package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bakery-storefront-edge/config"
	"bakery-storefront-edge/internal/metrics"
	"bakery-storefront-edge/internal/model"
)

// pgDiskFull is the SQLSTATE Postgres reports when it cannot extend a file.
const pgDiskFull = "53100"

// GormStore keeps the whole queue as one JSON array in a kv_records row.
type GormStore struct {
	db       *gorm.DB
	key      string
	maxBytes int
	log      *zap.SugaredLogger

	// mu serializes read-modify-write cycles within the process.
	mu    sync.Mutex
	now   func() time.Time
	newID func() (uuid.UUID, error)
}

// NewGormStore creates a store for the record named by cfg.StorageKey.
func NewGormStore(db *gorm.DB, cfg config.QueueConfig, log *zap.SugaredLogger) *GormStore {
	return &GormStore{
		db:       db,
		key:      cfg.StorageKey,
		maxBytes: cfg.MaxBytes,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewV7,
	}
}

func (s *GormStore) Enqueue(ctx context.Context, order model.OrderPayload) (model.PendingOrder, error) {
	id, err := s.newID()
	if err != nil {
		return model.PendingOrder{}, fmt.Errorf("failed to generate order id: %w", err)
	}
	pending := model.PendingOrder{
		ID:        id.String(),
		Data:      order,
		Timestamp: s.now().UTC(),
	}

	err = s.update(ctx, func(orders []model.PendingOrder) []model.PendingOrder {
		return append(orders, pending)
	})
	if err != nil {
		return model.PendingOrder{}, err
	}
	s.log.Infof("queued order %s for %s", pending.ID, order.CustomerName)
	return pending, nil
}

func (s *GormStore) List(ctx context.Context) ([]model.PendingOrder, error) {
	orders, err := load(s.db.WithContext(ctx), s.key, false)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *GormStore) Remove(ctx context.Context, id string) error {
	return s.update(ctx, func(orders []model.PendingOrder) []model.PendingOrder {
		return slices.DeleteFunc(orders, func(o model.PendingOrder) bool { return o.ID == id })
	})
}

func (s *GormStore) update(ctx context.Context, mutate func([]model.PendingOrder) []model.PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var size int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders, err := load(tx, s.key, true)
		if err != nil {
			return err
		}
		orders = mutate(orders)

		value, err := json.Marshal(orders)
		if err != nil {
			return fmt.Errorf("failed to encode pending orders: %w", err)
		}
		if s.maxBytes > 0 && len(value) > s.maxBytes {
			return fmt.Errorf("%w: %d bytes exceeds quota of %d", ErrStorageFull, len(value), s.maxBytes)
		}

		record := model.KVRecord{Key: s.key, Value: string(value), UpdatedAt: s.now().UTC()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return classify(err)
		}
		size = len(orders)
		return nil
	})
	if err != nil {
		return err
	}
	metrics.PendingOrders.Set(float64(size))
	return nil
}

// load decodes the queue record. A missing record is an empty queue.
func load(tx *gorm.DB, key string, forUpdate bool) ([]model.PendingOrder, error) {
	if forUpdate {
		// Ignored by SQLite; row lock on Postgres.
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var records []model.KVRecord
	if err := tx.Where("record_key = ?", key).Limit(1).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to read pending orders: %w", err)
	}
	if len(records) == 0 || records[0].Value == "" {
		return []model.PendingOrder{}, nil
	}

	var orders []model.PendingOrder
	if err := json.Unmarshal([]byte(records[0].Value), &orders); err != nil {
		return nil, fmt.Errorf("failed to decode pending orders: %w", err)
	}
	if orders == nil {
		orders = []model.PendingOrder{}
	}
	return orders, nil
}

// classify maps driver-level out-of-space errors onto ErrStorageFull.
func classify(err error) error {
	if isStorageFull(err) {
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	}
	return fmt.Errorf("failed to write pending orders: %w", err)
}

func isStorageFull(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrFull {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgDiskFull {
		return true
	}
	return false
}
