package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bakery-storefront-edge/config"
	"bakery-storefront-edge/internal/model"
	"bakery-storefront-edge/internal/testutil"
)

func queueConfig() config.QueueConfig {
	return config.QueueConfig{StorageKey: "pendingOrders", MaxBytes: 5 << 20}
}

func sampleOrder(name string) model.OrderPayload {
	return model.OrderPayload{
		CustomerName:  name,
		CustomerEmail: "guest@example.com",
		CustomerPhone: "555-0100",
		PickupTime:    "2026-10-14T09:30",
		Items: []model.OrderItem{
			{ID: "croissant", Name: "Butter Croissant", Price: 3.50, Quantity: 2, Category: "bakery"},
		},
		TotalAmount: 7.00,
	}
}

func newStore(t *testing.T, db *gorm.DB, cfg config.QueueConfig) *GormStore {
	t.Helper()
	s := NewGormStore(db, cfg, zap.NewNop().Sugar())
	fixed := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s
}

func TestGormStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, testutil.NewSQLiteDB(t), queueConfig())

	empty, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	pending, err := s.Enqueue(ctx, sampleOrder("Ada"))
	require.NoError(t, err)
	assert.NotEmpty(t, pending.ID)
	assert.Equal(t, time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), pending.Timestamp)

	orders, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, pending.ID, orders[0].ID)
	assert.Equal(t, "Ada", orders[0].Data.CustomerName)
	assert.Equal(t, 7.00, orders[0].Data.TotalAmount)
	assert.True(t, pending.Timestamp.Equal(orders[0].Timestamp))

	require.NoError(t, s.Remove(ctx, pending.ID))
	orders, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestGormStore_InsertionOrderAndIdempotentRemove(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, testutil.NewSQLiteDB(t), queueConfig())

	var ids []string
	for _, name := range []string{"O1", "O2", "O3"} {
		p, err := s.Enqueue(ctx, sampleOrder(name))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	assert.Len(t, map[string]struct{}{ids[0]: {}, ids[1]: {}, ids[2]: {}}, 3, "ids must be unique")

	require.NoError(t, s.Remove(ctx, "does-not-exist"))
	require.NoError(t, s.Remove(ctx, ids[1]))
	require.NoError(t, s.Remove(ctx, ids[1]))

	orders, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "O1", orders[0].Data.CustomerName)
	assert.Equal(t, "O3", orders[1].Data.CustomerName)
}

func TestGormStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "edge.db")

	first := newStore(t, testutil.OpenSQLiteDB(t, path), queueConfig())
	pending, err := first.Enqueue(ctx, sampleOrder("Grace"))
	require.NoError(t, err)

	second := newStore(t, testutil.OpenSQLiteDB(t, path), queueConfig())
	orders, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, pending.ID, orders[0].ID)
}

func TestGormStore_RecordLayout(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	s := newStore(t, db, queueConfig())

	_, err := s.Enqueue(ctx, sampleOrder("Linus"))
	require.NoError(t, err)

	var record model.KVRecord
	require.NoError(t, db.Where("record_key = ?", "pendingOrders").First(&record).Error)

	var raw []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(record.Value), &raw))
	require.Len(t, raw, 1)
	assert.Contains(t, raw[0], "id")
	assert.Contains(t, raw[0], "data")
	assert.Contains(t, raw[0], "timestamp")
	assert.Contains(t, string(raw[0]["data"]), `"customer_name":"Linus"`)
}

func TestGormStore_QuotaExhausted(t *testing.T) {
	ctx := context.Background()
	cfg := queueConfig()

	one, err := json.Marshal([]model.PendingOrder{{ID: "01920000-0000-7000-8000-000000000000", Data: sampleOrder("Ada"), Timestamp: time.Now()}})
	require.NoError(t, err)
	// Room for one order, not two.
	cfg.MaxBytes = len(one) + 16

	s := newStore(t, testutil.NewSQLiteDB(t), cfg)
	_, err = s.Enqueue(ctx, sampleOrder("Ada"))
	require.NoError(t, err)

	_, err = s.Enqueue(ctx, sampleOrder("Bob"))
	assert.ErrorIs(t, err, ErrStorageFull)

	orders, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1, "a rejected write leaves the queue untouched")
	assert.Equal(t, "Ada", orders[0].Data.CustomerName)
}

func TestGormStore_PostgresDiskFull(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "kv_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"record_key", "value", "updated_at"}))
	mock.ExpectExec(`INSERT INTO "kv_records"`).
		WillReturnError(&pgconn.PgError{Code: "53100", Message: "could not extend file"})
	mock.ExpectRollback()

	s := newStore(t, db, queueConfig())
	_, err = s.Enqueue(context.Background(), sampleOrder("Ada"))
	assert.ErrorIs(t, err, ErrStorageFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsStorageFull(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sqlite full", sqlite3.Error{Code: sqlite3.ErrFull}, true},
		{"wrapped sqlite full", fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrFull}), true},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, false},
		{"postgres disk full", &pgconn.PgError{Code: "53100"}, true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isStorageFull(tt.err))
		})
	}
}
