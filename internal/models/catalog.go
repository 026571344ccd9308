package models

import "time"

// ProductStatus represents a product's lifecycle status
type ProductStatus string

const (
	ProductStatusPendingApproval ProductStatus = "PendingApproval"
	ProductStatusInStock         ProductStatus = "Instock"
	ProductStatusOutOfStock      ProductStatus = "Outstock"
	ProductStatusHidden          ProductStatus = "Hidden"
	ProductStatusPending         ProductStatus = "Pending"
	ProductStatusViolation       ProductStatus = "Violation"
)

// DefaultProductWeight is used for shipping quotes when a product has no weight (grams).
const DefaultProductWeight = 500

// Product represents a product listed by a shop
type Product struct {
	ID        string        `json:"id" db:"id"`
	ShopID    string        `json:"shopId" db:"shop_id"`
	Name      string        `json:"name" db:"name"`
	Price     int64         `json:"price" db:"price"`
	Weight    int           `json:"weight" db:"weight"`
	Stock     int           `json:"stock" db:"stock"`
	Sold      int           `json:"sold" db:"sold"`
	Likes     int           `json:"likes" db:"likes"`
	Rating    float64       `json:"rating" db:"rating"`
	Status    ProductStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time     `json:"updatedAt" db:"updated_at"`
}

// ShippingWeight returns the weight used for fee quotes.
func (p *Product) ShippingWeight() int {
	if p.Weight <= 0 {
		return DefaultProductWeight
	}
	return p.Weight
}

// IsAvailable checks if the product can be ordered
func (p *Product) IsAvailable() bool {
	return p.Status == ProductStatusInStock && p.Stock > 0
}

// ShopBanState represents whether a shop may sell
type ShopBanState string

const (
	ShopActive   ShopBanState = "active"
	ShopInactive ShopBanState = "inactive"
	ShopBanned   ShopBanState = "banned"
)

// Shop is a seller. Its address is the shipping pickup origin.
type Shop struct {
	ID              string       `json:"id" db:"id"`
	OwnerID         string       `json:"ownerId" db:"owner_id"`
	Name            string       `json:"name" db:"name"`
	Province        string       `json:"province" db:"province"`
	District        string       `json:"district" db:"district"`
	Ward            string       `json:"ward" db:"ward"`
	Address         string       `json:"address" db:"address"`
	Phone           string       `json:"phone" db:"phone"`
	BanState        ShopBanState `json:"banState" db:"ban_state"`
	BanReason       *string      `json:"banReason,omitempty" db:"ban_reason"`
	BanDurationDays *int         `json:"banDurationDays,omitempty" db:"ban_duration_days"`
	BanStart        *time.Time   `json:"banStart,omitempty" db:"ban_start"`
	Followers       int          `json:"followers" db:"followers"`
	Rating          float64      `json:"rating" db:"rating"`
}

// IsSelling reports whether the shop accepts orders at the given time.
// A ban with a duration lapses once the duration has elapsed.
func (s *Shop) IsSelling(now time.Time) bool {
	switch s.BanState {
	case ShopActive:
		return true
	case ShopBanned:
		if s.BanStart != nil && s.BanDurationDays != nil && *s.BanDurationDays > 0 {
			return now.After(s.BanStart.AddDate(0, 0, *s.BanDurationDays))
		}
		return false
	default:
		return false
	}
}

// HasPickupAddress reports whether enough location data exists to quote shipping.
func (s *Shop) HasPickupAddress() bool {
	return s.Province != "" && s.District != ""
}

// Customer is a buyer profile. Its address is the shipping destination.
type Customer struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Phone    string `json:"phone" db:"phone"`
	Province string `json:"province" db:"province"`
	District string `json:"district" db:"district"`
	Ward     string `json:"ward" db:"ward"`
	Address  string `json:"address" db:"address"`
}

// HasDeliveryAddress reports whether enough location data exists to quote shipping.
func (c *Customer) HasDeliveryAddress() bool {
	return c.Province != "" && c.District != "" && c.Address != ""
}

// FullAddress formats the destination for the order snapshot.
func (c *Customer) FullAddress() string {
	parts := []string{c.Address, c.Ward, c.District, c.Province}
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}

// Cart quantity bounds applied on add-to-cart.
const (
	MinCartQuantity = 1
	MaxCartQuantity = 20
)

// CartItem represents an item in a buyer's cart
type CartItem struct {
	ID        int64     `json:"id" db:"id"`
	BuyerID   string    `json:"buyerId" db:"buyer_id"`
	ProductID string    `json:"productId" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	AddedAt   time.Time `json:"addedAt" db:"added_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	// Joined data (populated when needed)
	Product *Product `json:"product,omitempty"`
}

// ClampCartQuantity bounds a requested quantity to 1..20 and to the available stock.
func ClampCartQuantity(requested, stock int) int {
	q := requested
	if q < MinCartQuantity {
		q = MinCartQuantity
	}
	if q > MaxCartQuantity {
		q = MaxCartQuantity
	}
	if q > stock {
		q = stock
	}
	return q
}
