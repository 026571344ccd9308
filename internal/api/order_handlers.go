package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/models"
	"storefront-backend/internal/services"
)

type cancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ratingRequest struct {
	Stars   int    `json:"stars" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=1000"`
}

// Checkout turns the selected cart entries into orders
func (h *Handlers) Checkout(c *gin.Context) {
	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.checkout.Checkout(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetOrders lists the buyer's orders
func (h *Handlers) GetOrders(c *gin.Context) {
	f, err := orderFilter(c)
	if err != nil {
		respondBadRequest(c, err)
		return
	}
	orders, err := h.orders.ListBuyerOrders(c.Request.Context(), userID(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, orders)
}

// GetOrder returns one of the buyer's orders
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.orders.GetBuyerOrder(c.Request.Context(), userID(c), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, order)
}

// CancelOrder cancels an order awaiting confirmation
func (h *Handlers) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), userID(c), c.Param("code"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, order)
}

// ConfirmReceived marks a delivered order as received
func (h *Handlers) ConfirmReceived(c *gin.Context) {
	order, err := h.orders.ConfirmReceived(c.Request.Context(), userID(c), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, order)
}

// RateOrder completes an order with a rating
func (h *Handlers) RateOrder(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	outcome, err := h.orders.SubmitRating(c.Request.Context(), userID(c), c.Param("code"), req.Stars, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, outcome)
}

// GetShopOrders lists orders placed with the caller's shop
func (h *Handlers) GetShopOrders(c *gin.Context) {
	shopID, ok := h.shopID(c)
	if !ok {
		return
	}
	f, err := orderFilter(c)
	if err != nil {
		respondBadRequest(c, err)
		return
	}
	orders, err := h.orders.ListShopOrders(c.Request.Context(), shopID, f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, orders)
}

// ConfirmShopOrder accepts an order and hands it to the carrier
func (h *Handlers) ConfirmShopOrder(c *gin.Context) {
	h.shopTransition(c, h.orders.ConfirmAndHandToCarrier)
}

// MarkInTransit records that the carrier has the parcel
func (h *Handlers) MarkInTransit(c *gin.Context) {
	h.shopTransition(c, h.orders.MarkInTransit)
}

// MarkAwaitingRating records delivery from the shop side
func (h *Handlers) MarkAwaitingRating(c *gin.Context) {
	h.shopTransition(c, h.orders.MarkAwaitingRating)
}

func (h *Handlers) shopTransition(c *gin.Context, apply func(ctx context.Context, shopID, code string) (*models.Order, error)) {
	shopID, ok := h.shopID(c)
	if !ok {
		return
	}
	order, err := apply(c.Request.Context(), shopID, c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, order)
}
