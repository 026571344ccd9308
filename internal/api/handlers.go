// Package api exposes the storefront services over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/middleware"
	"storefront-backend/internal/models"
	"storefront-backend/internal/providers"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/services"
)

// Handlers holds the services behind the HTTP routes
type Handlers struct {
	catalog  repository.CatalogRepository
	cart     *services.CartService
	shipping *services.ShippingService
	orders   *services.OrderService
	payments *services.PaymentService
	checkout *services.CheckoutService
	ws       *services.WebSocketService
}

// NewHandlers creates the HTTP handlers
func NewHandlers(
	catalog repository.CatalogRepository,
	cart *services.CartService,
	shipping *services.ShippingService,
	orders *services.OrderService,
	payments *services.PaymentService,
	checkout *services.CheckoutService,
	ws *services.WebSocketService,
) *Handlers {
	return &Handlers{
		catalog:  catalog,
		cart:     cart,
		shipping: shipping,
		orders:   orders,
		payments: payments,
		checkout: checkout,
		ws:       ws,
	}
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrLinkInProgress):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrEmptyOrder),
		errors.Is(err, services.ErrUnrecognizedSignal):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrProductUnavailable),
		errors.Is(err, services.ErrShopUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrPaymentLink),
		errors.Is(err, providers.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("route", c.FullPath()).Msg("Request failed")
		msg = "Internal server error"
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request data: " + err.Error(),
	})
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func userID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserID)
}

// shopID resolves the shop owned by the authenticated user.
func (h *Handlers) shopID(c *gin.Context) (string, bool) {
	shop, err := h.catalog.GetShopByOwner(c.Request.Context(), userID(c))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "No shop for this account"})
			return "", false
		}
		respondError(c, err)
		return "", false
	}
	return shop.ID, true
}

// orderFilter reads ?status=&limit=&offset= from the query string.
func orderFilter(c *gin.Context) (repository.OrderFilter, error) {
	var f repository.OrderFilter
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseOrderStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = &status
	}

	f.Limit = 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return f, errors.New("limit must be between 1 and 200")
		}
		f.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errors.New("offset must be non-negative")
		}
		f.Offset = n
	}
	return f, nil
}
