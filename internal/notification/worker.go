package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"bakery-storefront-edge/internal/model"
	"bakery-storefront-edge/internal/store"
)

// Defaults applied to empty Message fields.
const (
	DefaultTitle = "Artisan Bakery & Café"
	DefaultBody  = "Your order is ready for pickup!"
	DefaultURL   = "/"
)

// Message is the web push payload rendered by the storefront.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

func (m Message) withDefaults() Message {
	if m.Title == "" {
		m.Title = DefaultTitle
	}
	if m.Body == "" {
		m.Body = DefaultBody
	}
	if m.URL == "" {
		m.URL = DefaultURL
	}
	return m
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Message
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.SugaredLogger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options, log *zap.SugaredLogger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Message, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debugf("push worker %d started", id)
	for {
		select {
		case msg := <-wp.jobs:
			wp.broadcast(ctx, msg)
		case <-ctx.Done():
			wp.log.Debugf("push worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues msg for every subscription. It never blocks; a full queue
// drops the message.
func (wp *WorkerPool) Dispatch(msg Message) bool {
	select {
	case wp.jobs <- msg:
		return true
	default:
		wp.log.Warnf("push queue full, dropping %q", msg.Body)
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Message {
	return wp.jobs
}

// OrderSynced notifies subscribers that a queued order reached the bakery.
func (wp *WorkerPool) OrderSynced(_ context.Context, pending model.PendingOrder, order *model.Order) {
	wp.log.Debugf("dispatching push for order %s (local %s)", order.ID, pending.ID)
	wp.Dispatch(syncedMessage(order))
}

// SyncedBody is the notification text for a queued order the bakery accepted.
const SyncedBody = "Your order %s was received by the bakery."

func syncedMessage(order *model.Order) Message {
	id := ""
	if order != nil {
		id = order.ID
	}
	return Message{Body: fmt.Sprintf(SyncedBody, id)}
}

// broadcast sends msg to every stored subscription.
func (wp *WorkerPool) broadcast(ctx context.Context, msg Message) {
	subscriptions, err := wp.store.ListSubscriptions(ctx)
	if err != nil {
		wp.log.Errorf("error fetching subscriptions: %v", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(msg.withDefaults())
	if err != nil {
		wp.log.Errorf("error encoding push payload: %v", err)
		return
	}

	wp.log.Infof("sending %d notifications", len(subscriptions))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warnf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Infof("subscription for endpoint %s is expired, deleting", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Errorf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}

// Options builds the webpush options from the VAPID settings.
func Options(publicKey, privateKey, subject string, ttl int) *webpush.Options {
	return &webpush.Options{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		Subscriber:      subject,
		TTL:             ttl,
	}
}
