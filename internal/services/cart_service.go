package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-backend/internal/models"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/utils"
)

// CartService handles cart entries and turns a selection into order lines
type CartService struct {
	catalog repository.CatalogRepository
	carts   repository.CartRepository
	now     func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(catalog repository.CatalogRepository, carts repository.CartRepository) *CartService {
	return &CartService{catalog: catalog, carts: carts, now: time.Now}
}

// sellable loads a product and its shop and checks both can take orders.
func (s *CartService) sellable(ctx context.Context, productID string) (*models.Product, *models.Shop, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	if !product.IsAvailable() {
		return nil, nil, fmt.Errorf("%s: %w", product.Name, ErrProductUnavailable)
	}

	shop, err := s.catalog.GetShop(ctx, product.ShopID)
	if err != nil {
		return nil, nil, err
	}
	if !shop.IsSelling(s.now()) {
		return nil, nil, fmt.Errorf("%s: %w", shop.Name, ErrShopUnavailable)
	}
	return product, shop, nil
}

// AddToCart adds quantity to the buyer's entry, clamped to 1..20 and to stock.
func (s *CartService) AddToCart(ctx context.Context, buyerID, productID string, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, validationError("quantity must be at least 1")
	}

	product, _, err := s.sellable(ctx, productID)
	if err != nil {
		return nil, err
	}

	current := 0
	existing, err := s.carts.Get(ctx, buyerID, productID)
	switch {
	case err == nil:
		current = existing.Quantity
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	q := models.ClampCartQuantity(current+quantity, product.Stock)
	if err := s.carts.Upsert(ctx, buyerID, productID, q); err != nil {
		return nil, err
	}

	item, err := s.carts.Get(ctx, buyerID, productID)
	if err != nil {
		return nil, err
	}
	item.Product = product
	return item, nil
}

// UpdateQuantity replaces the quantity of an existing entry, clamped the same way.
func (s *CartService) UpdateQuantity(ctx context.Context, buyerID, productID string, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, validationError("quantity must be at least 1")
	}
	if _, err := s.carts.Get(ctx, buyerID, productID); err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock <= 0 {
		return nil, fmt.Errorf("%s: %w", product.Name, ErrProductUnavailable)
	}

	if err := s.carts.Upsert(ctx, buyerID, productID, models.ClampCartQuantity(quantity, product.Stock)); err != nil {
		return nil, err
	}
	item, err := s.carts.Get(ctx, buyerID, productID)
	if err != nil {
		return nil, err
	}
	item.Product = product
	return item, nil
}

// RemoveFromCart deletes one entry
func (s *CartService) RemoveFromCart(ctx context.Context, buyerID, productID string) error {
	return s.carts.Delete(ctx, buyerID, productID)
}

// ListCart returns the buyer's entries with product details
func (s *CartService) ListCart(ctx context.Context, buyerID string) ([]models.CartItem, error) {
	items, err := s.carts.List(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.CartItem{}
	}
	return items, nil
}

// CollectSelection snapshots the selected cart entries as order lines, in the
// order given. Duplicate ids are collapsed.
func (s *CartService) CollectSelection(ctx context.Context, buyerID string, productIDs []string) ([]models.CartLine, error) {
	if len(productIDs) == 0 {
		return nil, ErrEmptyOrder
	}

	productIDs = utils.RemoveDuplicates(productIDs)
	lines := make([]models.CartLine, 0, len(productIDs))
	for _, id := range productIDs {
		entry, err := s.carts.Get(ctx, buyerID, id)
		if err != nil {
			return nil, err
		}
		product, _, err := s.sellable(ctx, id)
		if err != nil {
			return nil, err
		}
		if entry.Quantity > product.Stock {
			return nil, fmt.Errorf("%s has %d left: %w", product.Name, product.Stock, ErrInsufficientStock)
		}

		lines = append(lines, models.CartLine{
			ProductID:   product.ID,
			ShopID:      product.ShopID,
			ProductName: product.Name,
			Quantity:    entry.Quantity,
			UnitPrice:   product.Price,
		})
	}
	return lines, nil
}
