// Package repository declares the persistence ports used by the services.
package repository

import (
	"context"
	"errors"
	"time"

	"storefront-backend/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a compare-and-set finds the row in another state.
	ErrConflict = errors.New("state changed concurrently")
	// ErrInsufficientStock is returned when a conditional stock decrement matches no row.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// CatalogRepository reads and seeds products, shops and customers.
type CatalogRepository interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetShop(ctx context.Context, id string) (*models.Shop, error)
	GetShopByOwner(ctx context.Context, ownerID string) (*models.Shop, error)
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)

	SaveProduct(ctx context.Context, p *models.Product) error
	SaveShop(ctx context.Context, s *models.Shop) error
	SaveCustomer(ctx context.Context, c *models.Customer) error
}

// CartRepository handles persistence for cart entries.
type CartRepository interface {
	Get(ctx context.Context, buyerID, productID string) (*models.CartItem, error)
	Upsert(ctx context.Context, buyerID, productID string, quantity int) error
	Delete(ctx context.Context, buyerID, productID string) error
	DeleteProducts(ctx context.Context, buyerID string, productIDs []string) (int64, error)
	List(ctx context.Context, buyerID string) ([]models.CartItem, error)
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status *models.OrderStatus
	Limit  int
	Offset int
}

// OrderRepository handles persistence for orders.
type OrderRepository interface {
	// CreateBatch inserts every order in one transaction.
	CreateBatch(ctx context.Context, orders []*models.Order) error
	GetByCode(ctx context.Context, code string) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID string, f OrderFilter) ([]models.Order, error)
	ListByShop(ctx context.Context, shopID string, f OrderFilter) ([]models.Order, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Order, error)
	LinkSession(ctx context.Context, sessionID string, codes []string) error

	// UpdateStatus moves an order only if it is still in from.
	UpdateStatus(ctx context.Context, code string, from, to models.OrderStatus, cancelReason *string) error
	// ConfirmWithStock decrements stock and moves the order to Preparing atomically.
	ConfirmWithStock(ctx context.Context, code string) (*models.Product, error)
	// SubmitRating completes the order and recomputes product and shop averages.
	SubmitRating(ctx context.Context, code string, stars int, comment string) (*RatingResult, error)
}

// RatingResult carries the recomputed averages after a rating.
type RatingResult struct {
	ProductID     string
	ProductRating float64
	ShopID        string
	ShopRating    float64
}

// SessionOutcome describes what happens to a session's orders when it resolves.
type SessionOutcome struct {
	PaymentStatus models.PaymentStatus
	// CancelReason, when set, cancels orders still awaiting confirmation.
	CancelReason string
}

// PaymentSessionRepository handles persistence for payment sessions.
type PaymentSessionRepository interface {
	Create(ctx context.Context, s *models.PaymentSession) error
	Get(ctx context.Context, id string) (*models.PaymentSession, error)
	GetByGatewayCode(ctx context.Context, code int64) (*models.PaymentSession, error)
	// MarkAwaitingRedirect records the checkout link on a Created session.
	MarkAwaitingRedirect(ctx context.Context, id, checkoutURL, paymentLinkID string) error
	// Resolve moves a non-terminal session to a terminal state and applies the
	// outcome to its orders in one transaction. It returns ErrConflict when the
	// session was already terminal.
	Resolve(ctx context.Context, id string, to models.PaymentSessionState, outcome SessionOutcome) error
	// ListExpired returns non-terminal sessions whose deadline is before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.PaymentSession, error)
}
