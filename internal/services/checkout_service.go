package services

import (
	"context"
	"errors"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/models"
	"storefront-backend/internal/utils"
)

// CheckoutRequest is what the buyer submits from the cart screen.
type CheckoutRequest struct {
	ProductIDs      []string             `json:"productIds" binding:"required,min=1"`
	PaymentMethod   models.PaymentMethod `json:"paymentMethod" binding:"required,oneof=COD QR"`
	DeliveryAddress string               `json:"deliveryAddress"`
}

// CheckoutResult is the placed batch plus the payment session for QR orders.
type CheckoutResult struct {
	*PlaceOrderResult
	FailedFees     []string               `json:"failedFees"`
	PaymentSession *models.PaymentSession `json:"paymentSession,omitempty"`
}

// CheckoutService runs the cart to order flow
type CheckoutService struct {
	carts    *CartService
	shipping *ShippingService
	orders   *OrderService
	payments *PaymentService
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(carts *CartService, shipping *ShippingService, orders *OrderService, payments *PaymentService) *CheckoutService {
	return &CheckoutService{carts: carts, shipping: shipping, orders: orders, payments: payments}
}

// Checkout collects the selected cart entries, quotes shipping, writes the
// orders and, for QR payment, opens a session with a checkout link. The
// orders stay placed when the link cannot be created; the session is then
// abandoned by the sweeper.
func (s *CheckoutService) Checkout(ctx context.Context, buyerID string, req CheckoutRequest) (*CheckoutResult, error) {
	if !req.PaymentMethod.Valid() {
		return nil, validationError("unsupported payment method %q", req.PaymentMethod)
	}

	lines, err := s.carts.CollectSelection(ctx, buyerID, req.ProductIDs)
	if err != nil {
		return nil, err
	}

	address := utils.SanitizeText(req.DeliveryAddress, maxDeliveryAddressLength)
	if address == "" {
		customer, err := s.carts.catalog.GetCustomer(ctx, buyerID)
		if err != nil {
			return nil, err
		}
		if !customer.HasDeliveryAddress() {
			return nil, validationError("a delivery address is required")
		}
		address = customer.FullAddress()
	}

	items := make([]models.FeeItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.FeeItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	quote := s.shipping.ResolveFees(ctx, buyerID, items)

	placed, err := s.orders.PlaceOrder(ctx, PlaceOrderRequest{
		BuyerID:         buyerID,
		Lines:           lines,
		Fees:            quote.Fees,
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: address,
	})
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{PlaceOrderResult: placed, FailedFees: quote.Failed}
	if req.PaymentMethod != models.PaymentMethodQR {
		return result, nil
	}

	session, err := s.payments.StartSession(ctx, buyerID, placed.OrderCodes, placed.GrandTotal)
	if err != nil {
		return nil, err
	}
	result.PaymentSession = session

	linked, err := s.payments.CreatePaymentLink(ctx, session.ID)
	if err != nil {
		if errors.Is(err, ErrPaymentLink) {
			logging.Ctx(ctx).Warn().Err(err).Str("session_id", session.ID).Msg("Checkout completed without payment link")
			return result, nil
		}
		return nil, err
	}
	result.PaymentSession = linked
	return result, nil
}
