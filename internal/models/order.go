package models

import (
	"time"
)

// Fixed cancellation reasons offered to buyers. Free text is accepted as well.
var CancelReasons = []string{
	"Muốn thay đổi địa chỉ giao hàng",
	"Muốn thay đổi sản phẩm",
	"Tìm thấy giá rẻ hơn ở chỗ khác",
	"Đổi ý, không muốn mua nữa",
	"Thủ tục thanh toán rắc rối",
}

const (
	// CancelReasonPaymentCancelled is recorded when the buyer backs out at the gateway.
	CancelReasonPaymentCancelled = "Hủy thanh toán"
	// CancelReasonPaymentExpired is recorded when no gateway callback arrives in time.
	CancelReasonPaymentExpired = "Quá hạn thanh toán"
)

// Order is one purchased cart line.
type Order struct {
	ID               int64         `json:"id" db:"id"`
	OrderCode        string        `json:"orderCode" db:"order_code"`
	BuyerID          string        `json:"buyerId" db:"buyer_id"`
	ShopID           string        `json:"shopId" db:"shop_id"`
	ProductID        string        `json:"productId" db:"product_id"`
	ProductName      string        `json:"productName" db:"product_name"`
	Quantity         int           `json:"quantity" db:"quantity"`
	UnitPrice        int64         `json:"unitPrice" db:"unit_price"`
	TotalCost        int64         `json:"totalCost" db:"total_cost"`
	ShippingFee      int64         `json:"shippingFee" db:"shipping_fee"`
	PaymentMethod    PaymentMethod `json:"paymentMethod" db:"payment_method"`
	PaymentStatus    PaymentStatus `json:"paymentStatus" db:"payment_status"`
	Status           OrderStatus   `json:"status" db:"status"`
	DeliveryAddress  string        `json:"deliveryAddress" db:"delivery_address"`
	Rating           *int          `json:"rating,omitempty" db:"rating"`
	RatingComment    *string       `json:"ratingComment,omitempty" db:"rating_comment"`
	CancelReason     *string       `json:"cancelReason,omitempty" db:"cancel_reason"`
	PaymentSessionID *string       `json:"paymentSessionId,omitempty" db:"payment_session_id"`
	CreatedAt        time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time     `json:"updatedAt" db:"updated_at"`
}

// GrandTotal returns the line total plus shipping.
func (o *Order) GrandTotal() int64 {
	return o.TotalCost + o.ShippingFee
}

// CartLine is a selected cart entry with its price snapshotted at submission time.
type CartLine struct {
	ProductID   string `json:"productId"`
	ShopID      string `json:"shopId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
}

// LineTotal returns unit price times quantity.
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// StatusChange describes one applied fulfillment transition.
type StatusChange struct {
	OrderCode string      `json:"orderCode"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Actor     Actor       `json:"actor"`
	At        time.Time   `json:"at"`
}
