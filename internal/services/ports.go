package services

import (
	"context"
	"time"

	"storefront-backend/internal/models"
)

// FeeQuoter looks up a carrier fee for one parcel.
type FeeQuoter interface {
	Fee(ctx context.Context, req models.FeeRequest) (int64, error)
}

// ShipmentCreator registers a parcel with the carrier.
type ShipmentCreator interface {
	CreateShipment(ctx context.Context, order models.ShipmentOrder) (*models.ShipmentResponse, error)
}

// PaymentGateway manages hosted payment links.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req models.PaymentLinkRequest) (*models.PaymentLinkData, error)
	CancelPaymentLink(ctx context.Context, paymentID, reason string) (*models.PaymentLinkData, error)
	GetPaymentLink(ctx context.Context, paymentID string) (*models.PaymentLinkData, error)
}

// LinkGuard lets exactly one caller create the link for a session.
type LinkGuard interface {
	AcquireLinkGuard(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
}

// SessionNotifier fans session state changes out to listeners.
type SessionNotifier interface {
	Publish(ctx context.Context, event models.SessionEvent) error
	Subscribe(ctx context.Context, sessionID string) (<-chan models.SessionEvent, func(), error)
}

// SessionCoordinator is what the payment service needs from the session store.
type SessionCoordinator interface {
	LinkGuard
	SessionNotifier
}
