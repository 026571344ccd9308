package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/models"
)

type paymentSignalRequest struct {
	Channel string `json:"channel" binding:"required,oneof=deeplink navigation"`
	URL     string `json:"url" binding:"required"`
}

// PaymentSignal applies a redirect the app observed on either channel
func (h *Handlers) PaymentSignal(c *gin.Context) {
	var req paymentSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.payments.HandleSignal(c.Request.Context(), models.PaymentSignal{
		Channel: req.Channel,
		RawURL:  req.URL,
		BuyerID: userID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// PaymentReturn serves the gateway's return and cancel URLs. Reaching it is
// the navigation channel signal.
func (h *Handlers) PaymentReturn(c *gin.Context) {
	result, err := h.payments.HandleSignal(c.Request.Context(), models.PaymentSignal{
		Channel: models.SignalChannelNavigation,
		RawURL:  c.Request.URL.RequestURI(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// GetPaymentSession returns one of the buyer's payment sessions
func (h *Handlers) GetPaymentSession(c *gin.Context) {
	session, err := h.payments.GetSession(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, session)
}

// StreamPaymentSession relays session updates over a websocket
func (h *Handlers) StreamPaymentSession(c *gin.Context) {
	session, events, cancel, err := h.payments.Subscribe(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	buyerID, sessionID := userID(c), c.Param("id")
	reload := func(ctx context.Context) (*models.PaymentSession, error) {
		return h.payments.GetSession(ctx, buyerID, sessionID)
	}
	h.ws.StreamSession(c, session, events, reload, cancel)
}
