package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bakery-storefront-edge/internal/model"
	"bakery-storefront-edge/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

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

func emptyResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func TestMessage_Defaults(t *testing.T) {
	m := Message{}.withDefaults()
	assert.Equal(t, "Artisan Bakery & Café", m.Title)
	assert.Equal(t, "Your order is ready for pickup!", m.Body)
	assert.Equal(t, "/", m.URL)

	custom := Message{Title: "Fresh bread", URL: "/bakery"}.withDefaults()
	assert.Equal(t, "Fresh bread", custom.Title)
	assert.Equal(t, DefaultBody, custom.Body)
	assert.Equal(t, "/bakery", custom.URL)
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(db), &webpush.Options{}, zap.NewNop().Sugar())

	wp.OrderSynced(context.Background(), model.PendingOrder{ID: "local-1"}, &model.Order{ID: "srv-1"})

	select {
	case msg := <-wp.Jobs():
		assert.Equal(t, "Your order srv-1 was received by the bakery.", msg.Body)
		assert.NotContains(t, msg.Body, "ready for pickup")
		assert.Equal(t, DefaultTitle, msg.withDefaults().Title)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(gormDB), &webpush.Options{TTL: 60}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	listQuery := regexp.QuoteMeta(`SELECT * FROM "push_subscriptions" ORDER BY created_at`)
	columns := []string{"endpoint", "p256dh", "auth", "created_at"}

	t.Run("sends the payload to every subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		var mu sync.Mutex
		var endpoints []string
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				var msg Message
				assert.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, DefaultTitle, msg.Title)
				assert.Equal(t, "Order srv-7 is in the oven", msg.Body)
				assert.Equal(t, "/", msg.URL)
				assert.Equal(t, 60, options.TTL)
				mu.Lock()
				endpoints = append(endpoints, sub.Endpoint)
				mu.Unlock()
				return emptyResponse(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(listQuery).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("https://push.example.com/a", "p1", "a1", time.Now()).
				AddRow("https://push.example.com/b", "p2", "a2", time.Now()))

		require.True(t, wp.Dispatch(Message{Body: "Order srv-7 is in the oven"}))
		wg.Wait()
		assert.ElementsMatch(t, []string{"https://push.example.com/a", "https://push.example.com/b"}, endpoints)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return emptyResponse(http.StatusGone), nil
			},
		}

		mock.ExpectQuery(listQuery).
			WillReturnRows(sqlmock.NewRows(columns).AddRow("https://push.example.com/expired", "p", "a", time.Now()))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = $1`)).
			WithArgs("https://push.example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(Message{})

		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	})
}
