package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"bakery-storefront-edge/config"
	"bakery-storefront-edge/internal/mw"
)

// NewRouter creates and configures a new Gin router. Every path outside
// /local and /metrics is handed to proxy. The gin mode is set by the caller.
func NewRouter(h *Handler, proxy http.Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), mw.RequestLogger(h.log))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	local := r.Group("/local")
	local.Use(rateLimiter)
	{
		local.POST("/orders", h.PostOrder)
		local.GET("/orders/pending", h.GetPendingOrders)
		local.POST("/sync", h.PostSync)
		local.GET("/status", h.GetStatus)

		local.GET("/cart", h.GetCart)
		local.POST("/cart/items", h.PostCartItem)
		local.PUT("/cart/items/:id", h.PutCartItem)
		local.DELETE("/cart/items/:id", h.DeleteCartItem)
		local.POST("/cart/checkout", h.PostCheckout)

		local.GET("/subscriptions", h.GetSubscription)
		local.PUT("/subscriptions", h.PutSubscription)
		local.DELETE("/subscriptions", h.DeleteSubscription)
		local.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	if proxy != nil {
		r.NoRoute(gin.WrapH(proxy))
	}
	return r
}
