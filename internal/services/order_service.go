package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/messaging"
	"storefront-backend/internal/metrics"
	"storefront-backend/internal/models"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/utils"
)

// Next steps returned to the client after placing orders.
const (
	NextStepConfirmation = "confirmation"
	NextStepPayment      = "payment"
)

// Free-text limits, in characters.
const (
	maxCancelReasonLength    = 255
	maxRatingCommentLength   = 1000
	maxDeliveryAddressLength = 255
)

// OrderService handles the order lifecycle
type OrderService struct {
	orders         repository.OrderRepository
	carts          repository.CartRepository
	catalog        repository.CatalogRepository
	shipments      ShipmentCreator
	publisher      messaging.Publisher
	createShipment bool
}

// OrderServiceOption configures optional collaborators.
type OrderServiceOption func(*OrderService)

// WithShipments enables carrier shipment creation after the shop confirms.
func WithShipments(creator ShipmentCreator) OrderServiceOption {
	return func(s *OrderService) {
		s.shipments = creator
		s.createShipment = creator != nil
	}
}

// WithPublisher sets the domain event publisher.
func WithPublisher(p messaging.Publisher) OrderServiceOption {
	return func(s *OrderService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// NewOrderService creates a new order service
func NewOrderService(orders repository.OrderRepository, carts repository.CartRepository, catalog repository.CatalogRepository, opts ...OrderServiceOption) *OrderService {
	s := &OrderService{
		orders:    orders,
		carts:     carts,
		catalog:   catalog,
		publisher: messaging.LogPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrderRequest is one checkout batch.
type PlaceOrderRequest struct {
	BuyerID         string
	Lines           []models.CartLine
	Fees            map[string]int64
	PaymentMethod   models.PaymentMethod
	DeliveryAddress string
}

// PlaceOrderResult describes the written batch.
type PlaceOrderResult struct {
	Orders        []*models.Order `json:"orders"`
	OrderCodes    []string        `json:"orderCodes"`
	ItemTotal     int64           `json:"itemTotal"`
	ShippingTotal int64           `json:"shippingTotal"`
	GrandTotal    int64           `json:"grandTotal"`
	NextStep      string          `json:"nextStep"`
}

// NewOrderCode returns 10 random upper-case hex characters.
func NewOrderCode() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate order code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// PlaceOrder writes one order per line in a single transaction, then clears
// the ordered cart entries. Clearing the cart does not affect the result.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	if !req.PaymentMethod.Valid() {
		return nil, validationError("unsupported payment method %q", req.PaymentMethod)
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, validationError("quantity for %s must be positive", l.ProductID)
		}
	}

	result := &PlaceOrderResult{NextStep: NextStepConfirmation}
	if req.PaymentMethod == models.PaymentMethodQR {
		result.NextStep = NextStepPayment
	}

	productIDs := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		code, err := NewOrderCode()
		if err != nil {
			return nil, err
		}
		o := &models.Order{
			OrderCode:       code,
			BuyerID:         req.BuyerID,
			ShopID:          l.ShopID,
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			TotalCost:       l.LineTotal(),
			ShippingFee:     req.Fees[l.ProductID],
			PaymentMethod:   req.PaymentMethod,
			PaymentStatus:   models.PaymentStatusPending,
			Status:          models.OrderStatusAwaitingConfirmation,
			DeliveryAddress: req.DeliveryAddress,
		}
		result.Orders = append(result.Orders, o)
		result.OrderCodes = append(result.OrderCodes, code)
		result.ItemTotal += o.TotalCost
		result.ShippingTotal += o.ShippingFee
		productIDs = append(productIDs, l.ProductID)
	}
	result.GrandTotal = result.ItemTotal + result.ShippingTotal

	if err := s.orders.CreateBatch(ctx, result.Orders); err != nil {
		return nil, fmt.Errorf("failed to place orders: %w", err)
	}
	metrics.OrdersPlaced.WithLabelValues(string(req.PaymentMethod)).Add(float64(len(result.Orders)))

	log := logging.Ctx(ctx)
	log.Info().Str("buyer_id", req.BuyerID).Strs("order_codes", result.OrderCodes).
		Str("payment_method", string(req.PaymentMethod)).Int64("grand_total", result.GrandTotal).
		Msg("Orders placed")

	if _, err := s.carts.DeleteProducts(ctx, req.BuyerID, productIDs); err != nil {
		log.Warn().Err(err).Str("buyer_id", req.BuyerID).Msg("Failed to clear ordered cart entries")
	}

	s.publish(ctx, messaging.TopicOrdersPlaced, req.BuyerID, messaging.OrdersPlaced{
		BuyerID:       req.BuyerID,
		OrderCodes:    result.OrderCodes,
		PaymentMethod: req.PaymentMethod,
		ItemTotal:     result.ItemTotal,
		ShippingTotal: result.ShippingTotal,
		PlacedAt:      time.Now().UTC(),
	})

	return result, nil
}

func (s *OrderService) publish(ctx context.Context, topic, key string, event any) {
	if err := s.publisher.PublishEvent(ctx, topic, key, event); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}

// GetOrder looks an order up by its code
func (s *OrderService) GetOrder(ctx context.Context, code string) (*models.Order, error) {
	return s.orders.GetByCode(ctx, code)
}

// GetBuyerOrder returns an order owned by the buyer
func (s *OrderService) GetBuyerOrder(ctx context.Context, buyerID, code string) (*models.Order, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListBuyerOrders lists a buyer's orders, newest first
func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID string, f repository.OrderFilter) ([]models.Order, error) {
	orders, err := s.orders.ListByBuyer(ctx, buyerID, f)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// ListShopOrders lists a shop's orders, newest first
func (s *OrderService) ListShopOrders(ctx context.Context, shopID string, f repository.OrderFilter) ([]models.Order, error) {
	orders, err := s.orders.ListByShop(ctx, shopID, f)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// transition applies one table edge after checking ownership.
func (s *OrderService) transition(ctx context.Context, code string, actor models.Actor, owns func(*models.Order) bool, to models.OrderStatus, reason *string) (*models.Order, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !owns(o) {
		return nil, ErrForbidden
	}
	if !models.CanTransition(o.Status, to, actor) {
		return nil, fmt.Errorf("%w: %s to %s by %s", ErrInvalidTransition, o.Status, to, actor)
	}

	if err := s.orders.UpdateStatus(ctx, code, o.Status, to, reason); err != nil {
		return nil, conflictAsTransition(err)
	}
	s.recordTransition(ctx, code, o.Status, to, actor)

	return s.orders.GetByCode(ctx, code)
}

func (s *OrderService) recordTransition(ctx context.Context, code string, from, to models.OrderStatus, actor models.Actor) {
	metrics.OrderTransitions.WithLabelValues(string(to), string(actor)).Inc()
	logging.Ctx(ctx).Info().Str("order_code", code).Str("from", string(from)).Str("to", string(to)).
		Str("actor", string(actor)).Msg("Order status changed")
	s.publish(ctx, messaging.TopicOrderStatusChanged, code, models.StatusChange{
		OrderCode: code, From: from, To: to, Actor: actor, At: time.Now().UTC(),
	})
}

func buyerOwns(buyerID string) func(*models.Order) bool {
	return func(o *models.Order) bool { return o.BuyerID == buyerID }
}

func shopOwns(shopID string) func(*models.Order) bool {
	return func(o *models.Order) bool { return o.ShopID == shopID }
}

// CancelOrder cancels an order that is still awaiting confirmation
func (s *OrderService) CancelOrder(ctx context.Context, buyerID, code, reason string) (*models.Order, error) {
	reason = utils.SanitizeText(reason, maxCancelReasonLength)
	if reason == "" {
		return nil, validationError("a cancellation reason is required")
	}
	return s.transition(ctx, code, models.ActorBuyer, buyerOwns(buyerID), models.OrderStatusCancelled, &reason)
}

// ConfirmAndHandToCarrier accepts an order, decrements stock once and moves
// the order to Preparing. Shipment creation is best-effort.
func (s *OrderService) ConfirmAndHandToCarrier(ctx context.Context, shopID, code string) (*models.Order, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.ShopID != shopID {
		return nil, ErrForbidden
	}
	if !models.CanTransition(o.Status, models.OrderStatusPreparing, models.ActorShop) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, models.OrderStatusPreparing)
	}

	product, err := s.orders.ConfirmWithStock(ctx, code)
	if err != nil {
		return nil, conflictAsTransition(err)
	}
	s.recordTransition(ctx, code, o.Status, models.OrderStatusPreparing, models.ActorShop)
	if product.Status == models.ProductStatusOutOfStock {
		logging.Ctx(ctx).Info().Str("product_id", product.ID).Msg("Product sold out")
	}

	if s.createShipment {
		s.createCarrierShipment(ctx, o, product)
	}

	return s.orders.GetByCode(ctx, code)
}

func (s *OrderService) createCarrierShipment(ctx context.Context, o *models.Order, product *models.Product) {
	log := logging.Ctx(ctx).With().Str("order_code", o.OrderCode).Logger()

	shop, err := s.catalog.GetShop(ctx, o.ShopID)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping shipment: shop lookup failed")
		return
	}
	customer, err := s.catalog.GetCustomer(ctx, o.BuyerID)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping shipment: customer lookup failed")
		return
	}

	if !utils.IsPhoneNumber(customer.Phone) {
		log.Warn().Str("buyer_id", customer.ID).Msg("Skipping shipment: buyer has no valid phone number")
		return
	}
	if !utils.IsPhoneNumber(shop.Phone) {
		log.Warn().Str("shop_id", shop.ID).Msg("Skipping shipment: shop has no valid pickup phone number")
		return
	}

	var pickMoney int64
	if o.PaymentMethod == models.PaymentMethodCOD {
		pickMoney = o.GrandTotal()
	}

	resp, err := s.shipments.CreateShipment(ctx, models.ShipmentOrder{
		Products: []models.ShipmentProduct{{
			Name:     o.ProductName,
			Weight:   float64(product.ShippingWeight()) / 1000,
			Quantity: o.Quantity,
			Price:    o.UnitPrice,
		}},
		Order: models.ShipmentDetails{
			ID:           o.OrderCode,
			PickName:     shop.Name,
			PickAddress:  shop.Address,
			PickProvince: shop.Province,
			PickDistrict: shop.District,
			PickWard:     shop.Ward,
			PickTel:      utils.NormalizePhone(shop.Phone),
			Tel:          utils.NormalizePhone(customer.Phone),
			Name:         customer.Name,
			Address:      customer.Address,
			Province:     customer.Province,
			District:     customer.District,
			Ward:         customer.Ward,
			Hamlet:       "Khác",
			PickMoney:    pickMoney,
			Value:        o.TotalCost,
			Transport:    models.ShippingTransportRoad,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Carrier shipment creation failed")
		return
	}
	if resp.Order != nil {
		log.Info().Str("label", resp.Order.Label).Msg("Carrier shipment created")
	}
}

// MarkInTransit is called by the shop once the carrier has the parcel
func (s *OrderService) MarkInTransit(ctx context.Context, shopID, code string) (*models.Order, error) {
	return s.transition(ctx, code, models.ActorShop, shopOwns(shopID), models.OrderStatusInTransit, nil)
}

// MarkAwaitingRating is called by the shop when delivery completes
func (s *OrderService) MarkAwaitingRating(ctx context.Context, shopID, code string) (*models.Order, error) {
	return s.transition(ctx, code, models.ActorShop, shopOwns(shopID), models.OrderStatusAwaitingRating, nil)
}

// ConfirmReceived is called by the buyer on delivery
func (s *OrderService) ConfirmReceived(ctx context.Context, buyerID, code string) (*models.Order, error) {
	return s.transition(ctx, code, models.ActorBuyer, buyerOwns(buyerID), models.OrderStatusReceived, nil)
}

// RatingOutcome is the completed order plus the recomputed averages.
type RatingOutcome struct {
	Order         *models.Order `json:"order"`
	ProductRating float64       `json:"productRating"`
	ShopRating    float64       `json:"shopRating"`
}

// SubmitRating completes a delivered order with a 1-5 star rating
func (s *OrderService) SubmitRating(ctx context.Context, buyerID, code string, stars int, comment string) (*RatingOutcome, error) {
	if stars < 1 || stars > 5 {
		return nil, validationError("rating must be between 1 and 5")
	}

	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	if !models.CanTransition(o.Status, models.OrderStatusCompleted, models.ActorBuyer) {
		return nil, fmt.Errorf("%w: %s cannot be rated", ErrInvalidTransition, o.Status)
	}

	res, err := s.orders.SubmitRating(ctx, code, stars, utils.SanitizeText(comment, maxRatingCommentLength))
	if err != nil {
		return nil, conflictAsTransition(err)
	}
	s.recordTransition(ctx, code, o.Status, models.OrderStatusCompleted, models.ActorBuyer)

	updated, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &RatingOutcome{Order: updated, ProductRating: res.ProductRating, ShopRating: res.ShopRating}, nil
}

// IsClientError reports whether err should be shown to the caller as a 4xx.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrForbidden, ErrInvalidTransition, ErrInsufficientStock, ErrValidation,
		ErrProductUnavailable, ErrShopUnavailable, ErrUnrecognizedSignal, ErrEmptyOrder, ErrLinkInProgress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
