package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bakery-storefront-edge/internal/checkout"
)

type cartView struct {
	Items      []checkout.CartItem `json:"items"`
	TotalItems int                 `json:"total_items"`
	TotalPrice string              `json:"total_price"`
}

func (h *Handler) cartView() cartView {
	return cartView{
		Items:      h.cart.Items(),
		TotalItems: h.cart.TotalItems(),
		TotalPrice: h.cart.TotalPrice().StringFixed(2),
	}
}

// GetCart returns the storefront cart.
func (h *Handler) GetCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.cartView())
}

type addCartItemRequest struct {
	ID       string `json:"id" binding:"required"`
	Category string `json:"category"`
}

// PostCartItem adds one unit of a menu item. The item is looked up in the
// menu so the price always comes from the bakery.
func (h *Handler) PostCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	items, err := h.menu.Menu(c.Request.Context(), req.Category)
	if err != nil {
		h.log.Warnf("menu lookup for %s failed: %v", req.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "menu unavailable"})
		return
	}
	for _, item := range items {
		if item.ID != req.ID {
			continue
		}
		if !item.Available {
			c.JSON(http.StatusConflict, gin.H{"error": "item is not available"})
			return
		}
		h.cart.Add(item)
		c.JSON(http.StatusOK, h.cartView())
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// PutCartItem sets the quantity of a line. Zero or less removes it.
func (h *Handler) PutCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	h.cart.UpdateQuantity(c.Param("id"), *req.Quantity)
	c.JSON(http.StatusOK, h.cartView())
}

// DeleteCartItem removes a line.
func (h *Handler) DeleteCartItem(c *gin.Context) {
	h.cart.Remove(c.Param("id"))
	c.JSON(http.StatusOK, h.cartView())
}

// PostCheckout submits the cart with the customer details and clears it
// once the order is confirmed or queued.
func (h *Handler) PostCheckout(c *gin.Context) {
	var customer checkout.Customer
	if err := c.ShouldBindJSON(&customer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.submit(c, h.cart.Payload(customer)) {
		h.cart.Clear()
	}
}
