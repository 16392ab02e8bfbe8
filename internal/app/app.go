// Package app wires the edge process together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bakery-storefront-edge/config"
	"bakery-storefront-edge/internal/api"
	"bakery-storefront-edge/internal/cache"
	"bakery-storefront-edge/internal/checkout"
	"bakery-storefront-edge/internal/connectivity"
	"bakery-storefront-edge/internal/db"
	"bakery-storefront-edge/internal/edge"
	"bakery-storefront-edge/internal/intercept"
	"bakery-storefront-edge/internal/metrics"
	"bakery-storefront-edge/internal/notification"
	"bakery-storefront-edge/internal/orderapi"
	"bakery-storefront-edge/internal/queue"
	"bakery-storefront-edge/internal/store"
	"bakery-storefront-edge/internal/syncer"
)

const (
	gracefulTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// App is the assembled edge process.
type App struct {
	Config     *config.Config
	Log        *zap.SugaredLogger
	DB         *gorm.DB
	Cache      *cache.Manager
	Edge       *edge.Worker
	Upstream   *orderapi.Client
	Monitor    *connectivity.Monitor
	Queue      *queue.GormStore
	Sync       *syncer.Coordinator
	Checkout   *checkout.Service
	HTTPServer *http.Server

	writer *intercept.Writer
	push   *notification.WorkerPool
}

// Cleanup releases the resources acquired by Bootstrap.
type Cleanup func()

func applyGinMode(mode string, log *zap.SugaredLogger) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	case "", "debug":
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.DebugMode)
		log.Warnf("unknown gin_mode %q, falling back to debug", mode)
	}
}

// Bootstrap builds every component from cfg. Nothing runs until Start.
func Bootstrap(cfg *config.Config, log *zap.SugaredLogger) (*App, Cleanup, error) {
	metrics.MustRegister()

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to initialize database: %w", err)
	}
	closeDB := func() {
		if err := db.Close(gormDB); err != nil {
			log.Warnf("closing database: %v", err)
		}
	}

	storage, err := cache.NewStorage(cfg.Cache.Backend, gormDB)
	if err != nil {
		closeDB()
		return nil, func() {}, err
	}

	upstreamTransport := orderapi.NewTransport(cfg.Upstream, log)
	upstreamClient := &http.Client{Transport: upstreamTransport, Timeout: cfg.Upstream.Timeout}

	origin, err := parseOrigin(cfg.Upstream.BaseURL)
	if err != nil {
		closeDB()
		return nil, func() {}, err
	}

	manager := cache.NewManager(storage, cache.Partitions{
		Static: cfg.Cache.StaticPartition(),
		API:    cfg.Cache.APIPartition(),
	}, origin, upstreamClient, log.Named("cache"))

	writer := intercept.NewWriter(cfg.Cache.WriteWorkers, manager, log.Named("cache-writer"))
	interceptor := intercept.New(upstreamTransport, manager, writer, cfg.Cache.APIPrefix, log.Named("intercept"))

	// Orders and menus go through the interceptor so menu reads fall back to
	// the API partition. POSTs always reach the network.
	upstream, err := orderapi.New(cfg.Upstream.BaseURL, &http.Client{Transport: interceptor, Timeout: cfg.Upstream.Timeout}, log.Named("upstream"))
	if err != nil {
		closeDB()
		return nil, func() {}, err
	}

	// The probe must never be answered from the cache.
	probeURL, err := manager.Resolve(cfg.Connectivity.ProbePath)
	if err != nil {
		closeDB()
		return nil, func() {}, err
	}
	monitor := connectivity.NewMonitor(upstreamClient, probeURL, cfg.Connectivity.Interval, log.Named("connectivity"))

	pending := queue.NewGormStore(gormDB, cfg.Queue, log.Named("queue"))
	coordinator := syncer.New(pending, upstream, monitor, cfg.Sync, log.Named("sync"))
	facade := checkout.NewService(pending, upstream, monitor, coordinator, log.Named("checkout"))
	worker := edge.NewWorker(manager, coordinator, cfg.Cache.StaticURLs, cfg.Cache.APIURLs, cfg.Sync.Tag, log.Named("edge"))

	subscriptions := store.NewGormStore(gormDB)
	var (
		pushOptions *webpush.Options
		pushPool    *notification.WorkerPool
	)
	if cfg.Push.Enabled() {
		pushOptions = notification.Options(cfg.Push.PublicKey, cfg.Push.PrivateKey, cfg.Push.Subject, cfg.Push.TTL)
		pushPool = notification.NewWorkerPool(cfg.WorkerPool.Size, subscriptions, pushOptions, log.Named("push"))
		coordinator.Observe(pushPool)
	} else {
		log.Info("vapid keys not configured, push notifications disabled")
	}

	applyGinMode(cfg.Server.GinMode, log)
	handler := api.NewHandler(api.Deps{
		Checkout:      facade,
		Cart:          checkout.NewCart(),
		Menu:          upstream,
		Queue:         pending,
		Sync:          coordinator,
		Connectivity:  monitor,
		Subscriptions: subscriptions,
		WebPush:       pushOptions,
		Log:           log.Named("http"),
	})
	proxy := api.NewProxy(origin, interceptor, log.Named("proxy"))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, proxy, cfg.Server),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	a := &App{
		Config:     cfg,
		Log:        log,
		DB:         gormDB,
		Cache:      manager,
		Edge:       worker,
		Upstream:   upstream,
		Monitor:    monitor,
		Queue:      pending,
		Sync:       coordinator,
		Checkout:   facade,
		HTTPServer: server,
		writer:     writer,
		push:       pushPool,
	}

	cleanup := func() {
		writer.Close()
		coordinator.Wait()
		if err := manager.Close(); err != nil {
			log.Warnf("closing cache storage: %v", err)
		}
		closeDB()
	}
	return a, cleanup, nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream.base_url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream.base_url %q must be an absolute url", raw)
	}
	// Cache keys and the API prefix are matched against origin-rooted paths.
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("upstream.base_url %q must not have a path", raw)
	}
	return u, nil
}

// Start launches the background workers and runs the install and activate
// lifecycle. Workers stop when ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.writer.Start(ctx)
	if a.push != nil {
		a.push.Start(ctx)
	}
	go a.Monitor.Run(ctx)
	go a.Sync.Run(ctx)

	if err := a.Edge.Install(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := a.Edge.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// Run starts the app and serves HTTP until ctx is done, then shuts the
// server down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Infof("HTTP server starting on %s", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Log.Info("shutdown signal received, stopping services")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	a.Log.Info("server gracefully stopped")
	return nil
}
