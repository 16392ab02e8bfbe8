package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bakery-storefront-edge/internal/model"
	"bakery-storefront-edge/internal/testutil"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_SubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(testutil.NewSQLiteDB(t))

	sub := model.PushSubscription{Endpoint: "https://push.example.com/a", P256DH: "key-1", Auth: "auth-1"}
	require.NoError(t, s.UpsertSubscription(ctx, sub))

	sub.P256DH = "key-2"
	require.NoError(t, s.UpsertSubscription(ctx, sub))

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "key-2", got.P256DH)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.UpsertSubscription(ctx, model.PushSubscription{Endpoint: "https://push.example.com/b", P256DH: "k", Auth: "a"}))
	all, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))

	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_DeleteSubscriptionSQL(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = $1`)).
		WithArgs("https://push.example.com/gone").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteSubscription(context.Background(), "https://push.example.com/gone"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
