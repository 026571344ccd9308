package api

import (
	"github.com/gin-gonic/gin"

	"storefront-backend/internal/models"
	"storefront-backend/internal/utils"
)

type cartQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type addToCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// GetCart lists the buyer's cart with totals
func (h *Handlers) GetCart(c *gin.Context) {
	items, err := h.cart.ListCart(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	var totalAmount int64
	var totalItems int
	for _, item := range items {
		if item.Product != nil {
			totalAmount += item.Product.Price * int64(item.Quantity)
		}
		totalItems += item.Quantity
	}

	respondOK(c, gin.H{
		"items":       items,
		"totalItems":  totalItems,
		"totalAmount": totalAmount,
		"currency":    "VND",
		"formatted":   utils.FormatVND(totalAmount),
	})
}

// AddToCart adds a product to the buyer's cart
func (h *Handlers) AddToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	item, err := h.cart.AddToCart(c.Request.Context(), userID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, item)
}

// UpdateCartItem sets the quantity of a cart entry
func (h *Handlers) UpdateCartItem(c *gin.Context) {
	var req cartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	item, err := h.cart.UpdateQuantity(c.Request.Context(), userID(c), c.Param("productId"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, item)
}

// RemoveFromCart deletes a cart entry
func (h *Handlers) RemoveFromCart(c *gin.Context) {
	if err := h.cart.RemoveFromCart(c.Request.Context(), userID(c), c.Param("productId")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"productId": c.Param("productId")})
}

type shippingQuoteRequest struct {
	Items []models.FeeItem `json:"items" binding:"required,min=1,dive"`
}

// QuoteShipping resolves per-product shipping fees to the buyer's address
func (h *Handlers) QuoteShipping(c *gin.Context) {
	var req shippingQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	quote := h.shipping.ResolveFees(c.Request.Context(), userID(c), req.Items)

	ids := make([]string, 0, len(quote.Fees))
	for id := range quote.Fees {
		ids = append(ids, id)
	}
	respondOK(c, gin.H{
		"fees":   quote.Fees,
		"total":  quote.Total(ids),
		"failed": quote.Failed,
	})
}
