package services

import (
	"storefront-backend/internal/models"
)

func (s *ServiceTestSuite) TestCheckoutCOD() {
	_, err := s.cartService.AddToCart(s.ctx, "buyer-1", "prod-1", 1)
	s.Require().NoError(err)
	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 2)
	s.Require().NoError(err)

	res, err := s.checkoutService.Checkout(s.ctx, "buyer-1", CheckoutRequest{
		ProductIDs:    []string{"prod-1", "prod-2"},
		PaymentMethod: models.PaymentMethodCOD,
	})
	s.Require().NoError(err)
	s.Len(res.OrderCodes, 2)
	s.Equal(NextStepConfirmation, res.NextStep)
	s.Equal(int64(60000), res.ShippingTotal)
	s.Equal(int64(120000+700000+60000), res.GrandTotal)
	s.Empty(res.FailedFees)
	s.Nil(res.PaymentSession)
	s.Equal(0, s.gateway.createCalls())

	o, err := s.orderService.GetOrder(s.ctx, res.OrderCodes[0])
	s.Require().NoError(err)
	s.Equal("1 Lê Lợi, Bến Nghé, Quận 1, TP. Hồ Chí Minh", o.DeliveryAddress)
}

func (s *ServiceTestSuite) TestCheckoutQROpensLinkedSession() {
	_, err := s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 1)
	s.Require().NoError(err)

	res, err := s.checkoutService.Checkout(s.ctx, "buyer-1", CheckoutRequest{
		ProductIDs:      []string{"prod-2"},
		PaymentMethod:   models.PaymentMethodQR,
		DeliveryAddress: "  5 Hai Bà Trưng ",
	})
	s.Require().NoError(err)
	s.Equal(NextStepPayment, res.NextStep)
	s.Require().NotNil(res.PaymentSession)
	s.Equal(models.PaymentSessionAwaitingRedirect, res.PaymentSession.State)
	s.Equal(res.GrandTotal, res.PaymentSession.Amount)
	s.NotEmpty(res.PaymentSession.CheckoutURL)

	o, err := s.orderService.GetOrder(s.ctx, res.OrderCodes[0])
	s.Require().NoError(err)
	s.Equal("5 Hai Bà Trưng", o.DeliveryAddress)
	s.Require().NotNil(o.PaymentSessionID)
	s.Equal(res.PaymentSession.ID, *o.PaymentSessionID)
}

func (s *ServiceTestSuite) TestCheckoutQRWithoutLinkKeepsOrders() {
	s.gateway.createErr = errCarrierDown
	_, err := s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 1)
	s.Require().NoError(err)

	res, err := s.checkoutService.Checkout(s.ctx, "buyer-1", CheckoutRequest{
		ProductIDs:    []string{"prod-2"},
		PaymentMethod: models.PaymentMethodQR,
	})
	s.Require().NoError(err)
	s.Require().NotNil(res.PaymentSession)
	s.Equal(models.PaymentSessionCreated, res.PaymentSession.State)

	o, err := s.orderService.GetOrder(s.ctx, res.OrderCodes[0])
	s.Require().NoError(err)
	s.Equal(models.OrderStatusAwaitingConfirmation, o.Status)
}

func (s *ServiceTestSuite) TestCheckoutFeeFailureStillPlaces() {
	s.quoter.fn = func(models.FeeRequest) (int64, error) { return 0, errCarrierDown }
	_, err := s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 1)
	s.Require().NoError(err)

	res, err := s.checkoutService.Checkout(s.ctx, "buyer-1", CheckoutRequest{
		ProductIDs:    []string{"prod-2"},
		PaymentMethod: models.PaymentMethodCOD,
	})
	s.Require().NoError(err)
	s.Equal([]string{"prod-2"}, res.FailedFees)
	s.Equal(int64(0), res.ShippingTotal)
	s.Equal(int64(350000), res.GrandTotal)
}

func (s *ServiceTestSuite) TestCheckoutRejects() {
	_, err := s.checkoutService.Checkout(s.ctx, "buyer-1", CheckoutRequest{ProductIDs: []string{"prod-2"}, PaymentMethod: "CARD"})
	s.ErrorIs(err, ErrValidation)

	_, err = s.checkoutService.Checkout(s.ctx, "buyer-1", CheckoutRequest{PaymentMethod: models.PaymentMethodCOD})
	s.ErrorIs(err, ErrEmptyOrder)

	_, err = s.cartService.AddToCart(s.ctx, "buyer-noaddr", "prod-2", 1)
	s.Require().NoError(err)
	_, err = s.checkoutService.Checkout(s.ctx, "buyer-noaddr", CheckoutRequest{
		ProductIDs:    []string{"prod-2"},
		PaymentMethod: models.PaymentMethodCOD,
	})
	s.ErrorIs(err, ErrValidation)

	items, err := s.cartService.ListCart(s.ctx, "buyer-noaddr")
	s.Require().NoError(err)
	s.Len(items, 1)
}
