package services

import (
	"time"

	"storefront-backend/internal/models"
)

func (s *ServiceTestSuite) TestAddToCartAccumulatesAndClamps() {
	item, err := s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 5)
	s.Require().NoError(err)
	s.Equal(5, item.Quantity)
	s.Require().NotNil(item.Product)
	s.Equal("Quần jean", item.Product.Name)

	item, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 18)
	s.Require().NoError(err)
	s.Equal(models.MaxCartQuantity, item.Quantity)

	// Stock 3 caps below the per-line maximum.
	item, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-1", 10)
	s.Require().NoError(err)
	s.Equal(3, item.Quantity)
}

func (s *ServiceTestSuite) TestAddToCartRejects() {
	_, err := s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 0)
	s.ErrorIs(err, ErrValidation)

	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-out", 1)
	s.ErrorIs(err, ErrProductUnavailable)

	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-banned", 1)
	s.ErrorIs(err, ErrShopUnavailable)

	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "missing", 1)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ServiceTestSuite) TestExpiredBanAllowsSelling() {
	start := time.Now().AddDate(0, 0, -10)
	days := 7
	shop, err := s.catalog.GetShop(s.ctx, "shop-banned")
	s.Require().NoError(err)
	shop.BanStart = &start
	shop.BanDurationDays = &days
	s.Require().NoError(s.catalog.SaveShop(s.ctx, shop))

	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-banned", 1)
	s.NoError(err)
}

func (s *ServiceTestSuite) TestUpdateAndRemoveCartItem() {
	_, err := s.cartService.UpdateQuantity(s.ctx, "buyer-1", "prod-2", 2)
	s.ErrorIs(err, ErrNotFound)

	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 1)
	s.Require().NoError(err)

	item, err := s.cartService.UpdateQuantity(s.ctx, "buyer-1", "prod-2", 7)
	s.Require().NoError(err)
	s.Equal(7, item.Quantity)

	s.Require().NoError(s.cartService.RemoveFromCart(s.ctx, "buyer-1", "prod-2"))
	items, err := s.cartService.ListCart(s.ctx, "buyer-1")
	s.Require().NoError(err)
	s.NotNil(items)
	s.Empty(items)
}

func (s *ServiceTestSuite) TestCollectSelectionSnapshotsLines() {
	_, err := s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 2)
	s.Require().NoError(err)
	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-1", 1)
	s.Require().NoError(err)

	lines, err := s.cartService.CollectSelection(s.ctx, "buyer-1", []string{"prod-2", "prod-1", "prod-2"})
	s.Require().NoError(err)
	s.Require().Len(lines, 2)
	s.Equal(models.CartLine{ProductID: "prod-2", ShopID: "shop-1", ProductName: "Quần jean", Quantity: 2, UnitPrice: 350000}, lines[0])
	s.Equal("prod-1", lines[1].ProductID)
	s.Equal(int64(700000), lines[0].LineTotal())
}

func (s *ServiceTestSuite) TestCollectSelectionErrors() {
	_, err := s.cartService.CollectSelection(s.ctx, "buyer-1", nil)
	s.ErrorIs(err, ErrEmptyOrder)

	_, err = s.cartService.CollectSelection(s.ctx, "buyer-1", []string{"prod-2"})
	s.ErrorIs(err, ErrNotFound)

	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-1", 3)
	s.Require().NoError(err)

	// Stock dropped after the entry was added.
	p, err := s.catalog.GetProduct(s.ctx, "prod-1")
	s.Require().NoError(err)
	p.Stock = 2
	s.Require().NoError(s.catalog.SaveProduct(s.ctx, p))

	_, err = s.cartService.CollectSelection(s.ctx, "buyer-1", []string{"prod-1"})
	s.ErrorIs(err, ErrInsufficientStock)
}
