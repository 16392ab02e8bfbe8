package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"bakery-storefront-edge/internal/checkout"
	"bakery-storefront-edge/internal/model"
	"bakery-storefront-edge/internal/queue"
	"bakery-storefront-edge/internal/store"
	"bakery-storefront-edge/internal/syncer"
)

// Submitter places an order through the offline-aware facade.
type Submitter interface {
	Submit(ctx context.Context, order model.OrderPayload) (checkout.Result, error)
}

// Syncer is the sync coordinator as seen by the handlers.
type Syncer interface {
	Drain(ctx context.Context) (syncer.Report, error)
	Draining() bool
	Failures() int64
	SyncRequested() bool
}

// MenuReader reads the remote menu. Reads fall back to the API cache.
type MenuReader interface {
	Menu(ctx context.Context, category string) ([]model.MenuItem, error)
}

// Connectivity reports the advisory online flag.
type Connectivity interface {
	Online() bool
}

// Deps are the collaborators of the local API.
type Deps struct {
	Checkout      Submitter
	Cart          *checkout.Cart
	Menu          MenuReader
	Queue         queue.Store
	Sync          Syncer
	Connectivity  Connectivity
	Subscriptions store.Store
	WebPush       *webpush.Options
	Log           *zap.SugaredLogger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	checkout Submitter
	cart     *checkout.Cart
	menu     MenuReader
	queue    queue.Store
	sync     Syncer
	conn     Connectivity
	store    store.Store
	webpush  *webpush.Options
	log      *zap.SugaredLogger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cart := d.Cart
	if cart == nil {
		cart = checkout.NewCart()
	}
	return &Handler{
		checkout: d.Checkout,
		cart:     cart,
		menu:     d.Menu,
		queue:    d.Queue,
		sync:     d.Sync,
		conn:     d.Connectivity,
		store:    d.Subscriptions,
		webpush:  d.WebPush,
		log:      log,
	}
}
