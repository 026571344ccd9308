// Package messaging publishes order and payment domain events.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/models"
)

// Topics
const (
	TopicOrdersPlaced         = "orders.placed"
	TopicOrderStatusChanged   = "orders.status_changed"
	TopicPaymentSessionClosed = "payments.session_closed"
)

// Publisher handles sending events to a broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
	Close() error
}

// OrdersPlaced is emitted after a checkout batch commits.
type OrdersPlaced struct {
	BuyerID       string               `json:"buyerId"`
	OrderCodes    []string             `json:"orderCodes"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	ItemTotal     int64                `json:"itemTotal"`
	ShippingTotal int64                `json:"shippingTotal"`
	PlacedAt      time.Time            `json:"placedAt"`
}

// PaymentSessionClosed is emitted when a session reaches a terminal state.
type PaymentSessionClosed struct {
	SessionID  string                     `json:"sessionId"`
	State      models.PaymentSessionState `json:"state"`
	OrderCodes []string                   `json:"orderCodes"`
	Amount     int64                      `json:"amount"`
	ClosedAt   time.Time                  `json:"closedAt"`
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("topic", topic).Str("key", key).RawJSON("event", payload).Msg("Domain event")
	return nil
}

func (LogPublisher) Close() error { return nil }
