package models

import "fmt"

// OrderStatus is the fulfillment status of an order. The values are the literal
// strings stored in the orders table and shown to customers.
type OrderStatus string

const (
	OrderStatusAwaitingConfirmation OrderStatus = "Đợi xác nhận"
	OrderStatusPreparing            OrderStatus = "Chuẩn bị hàng"
	OrderStatusInTransit            OrderStatus = "Hàng đang được giao"
	OrderStatusReceived             OrderStatus = "Đã nhận được hàng"
	OrderStatusAwaitingRating       OrderStatus = "Đánh giá"
	OrderStatusCompleted            OrderStatus = "Hoàn thành"
	OrderStatusCancelled            OrderStatus = "Đã hủy"
)

// AllOrderStatuses lists every fulfillment status in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusAwaitingConfirmation,
	OrderStatusPreparing,
	OrderStatusInTransit,
	OrderStatusReceived,
	OrderStatusAwaitingRating,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// ParseOrderStatus converts a stored literal into an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range AllOrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Actor identifies who drives a transition.
type Actor string

const (
	ActorBuyer   Actor = "buyer"
	ActorShop    Actor = "shop"
	ActorPayment Actor = "payment"
	ActorSystem  Actor = "system"
)

type transitionKey struct {
	from OrderStatus
	to   OrderStatus
}

// orderTransitions is the complete set of allowed edges and who may take them.
var orderTransitions = map[transitionKey][]Actor{
	{OrderStatusAwaitingConfirmation, OrderStatusPreparing}: {ActorShop},
	{OrderStatusAwaitingConfirmation, OrderStatusCancelled}: {ActorBuyer, ActorPayment, ActorSystem},
	{OrderStatusPreparing, OrderStatusInTransit}:            {ActorShop},
	{OrderStatusInTransit, OrderStatusReceived}:             {ActorBuyer},
	{OrderStatusInTransit, OrderStatusAwaitingRating}:       {ActorShop},
	{OrderStatusReceived, OrderStatusCompleted}:             {ActorBuyer},
	{OrderStatusAwaitingRating, OrderStatusCompleted}:       {ActorBuyer},
}

// CanTransition reports whether actor may move an order from one status to another.
func CanTransition(from, to OrderStatus, actor Actor) bool {
	for _, a := range orderTransitions[transitionKey{from, to}] {
		if a == actor {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s by any actor.
func NextStatuses(s OrderStatus) []OrderStatus {
	var next []OrderStatus
	for _, to := range AllOrderStatuses {
		if _, ok := orderTransitions[transitionKey{s, to}]; ok {
			next = append(next, to)
		}
	}
	return next
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return len(NextStatuses(s)) == 0
}

// IsRateable reports whether a buyer may submit a rating for an order in s.
func (s OrderStatus) IsRateable() bool {
	return s == OrderStatusAwaitingRating || s == OrderStatusReceived
}

// PaymentStatus tracks the gateway outcome separately from fulfillment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusPaid      PaymentStatus = "Paid"
	PaymentStatusCancelled PaymentStatus = "Cancelled"
	PaymentStatusAbandoned PaymentStatus = "Abandoned"
)

// PaymentMethod is how the buyer pays for an order.
type PaymentMethod string

const (
	PaymentMethodCOD PaymentMethod = "COD"
	PaymentMethodQR  PaymentMethod = "QR"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodQR
}
