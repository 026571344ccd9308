package services

import (
	"regexp"

	"storefront-backend/internal/messaging"
	"storefront-backend/internal/models"
	"storefront-backend/internal/repository"
)

var orderCodePattern = regexp.MustCompile(`^[0-9A-F]{10}$`)

func (s *ServiceTestSuite) TestPlaceOrderWritesOneRowPerLine() {
	_, err := s.cartService.AddToCart(s.ctx, "buyer-1", "prod-1", 2)
	s.Require().NoError(err)
	_, err = s.cartService.AddToCart(s.ctx, "buyer-1", "prod-2", 3)
	s.Require().NoError(err)

	lines, err := s.cartService.CollectSelection(s.ctx, "buyer-1", []string{"prod-1", "prod-2"})
	s.Require().NoError(err)

	res, err := s.orderService.PlaceOrder(s.ctx, PlaceOrderRequest{
		BuyerID:         "buyer-1",
		Lines:           lines,
		Fees:            map[string]int64{"prod-1": 22000},
		PaymentMethod:   models.PaymentMethodCOD,
		DeliveryAddress: "1 Lê Lợi, Quận 1",
	})
	s.Require().NoError(err)
	s.Len(res.Orders, len(lines))
	s.Len(res.OrderCodes, len(lines))
	s.Equal(NextStepConfirmation, res.NextStep)
	s.Equal(int64(2*120000+3*350000), res.ItemTotal)
	s.Equal(int64(22000), res.ShippingTotal)
	s.Equal(res.ItemTotal+res.ShippingTotal, res.GrandTotal)

	for i, code := range res.OrderCodes {
		s.Regexp(orderCodePattern, code)
		stored, err := s.orderService.GetOrder(s.ctx, code)
		s.Require().NoError(err)
		s.Equal(lines[i].ProductID, stored.ProductID)
		s.Equal(lines[i].UnitPrice*int64(lines[i].Quantity), stored.TotalCost)
		s.Equal(models.OrderStatusAwaitingConfirmation, stored.Status)
		s.Equal(models.PaymentStatusPending, stored.PaymentStatus)
		s.Equal("1 Lê Lợi, Quận 1", stored.DeliveryAddress)
	}
	second, err := s.orderService.GetOrder(s.ctx, res.OrderCodes[1])
	s.Require().NoError(err)
	s.Equal(int64(0), second.ShippingFee)

	items, err := s.cartService.ListCart(s.ctx, "buyer-1")
	s.Require().NoError(err)
	s.Empty(items)
	s.Equal(1, s.publisher.count(messaging.TopicOrdersPlaced))
}

func (s *ServiceTestSuite) TestPlaceOrderQRNeedsPayment() {
	res, err := s.orderService.PlaceOrder(s.ctx, PlaceOrderRequest{
		BuyerID:       "buyer-1",
		Lines:         []models.CartLine{{ProductID: "prod-2", ShopID: "shop-1", ProductName: "Quần jean", Quantity: 1, UnitPrice: 350000}},
		PaymentMethod: models.PaymentMethodQR,
	})
	s.Require().NoError(err)
	s.Equal(NextStepPayment, res.NextStep)
}

func (s *ServiceTestSuite) TestPlaceOrderValidation() {
	line := models.CartLine{ProductID: "prod-2", ShopID: "shop-1", ProductName: "Quần jean", Quantity: 1, UnitPrice: 350000}

	_, err := s.orderService.PlaceOrder(s.ctx, PlaceOrderRequest{BuyerID: "buyer-1", PaymentMethod: models.PaymentMethodCOD})
	s.ErrorIs(err, ErrEmptyOrder)

	_, err = s.orderService.PlaceOrder(s.ctx, PlaceOrderRequest{BuyerID: "buyer-1", Lines: []models.CartLine{line}, PaymentMethod: "CARD"})
	s.ErrorIs(err, ErrValidation)

	bad := line
	bad.Quantity = 0
	_, err = s.orderService.PlaceOrder(s.ctx, PlaceOrderRequest{BuyerID: "buyer-1", Lines: []models.CartLine{bad}, PaymentMethod: models.PaymentMethodCOD})
	s.ErrorIs(err, ErrValidation)

	orders, err := s.orderService.ListBuyerOrders(s.ctx, "buyer-1", repository.OrderFilter{})
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *ServiceTestSuite) TestCancelOnlyWhileAwaitingConfirmation() {
	o := s.placeCOD("buyer-1", "prod-2", 1)

	_, err := s.orderService.CancelOrder(s.ctx, "buyer-1", o.OrderCode, "   ")
	s.ErrorIs(err, ErrValidation)

	_, err = s.orderService.CancelOrder(s.ctx, "someone-else", o.OrderCode, models.CancelReasons[0])
	s.ErrorIs(err, ErrForbidden)

	cancelled, err := s.orderService.CancelOrder(s.ctx, "buyer-1", o.OrderCode, models.CancelReasons[0])
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCancelled, cancelled.Status)
	s.Require().NotNil(cancelled.CancelReason)
	s.Equal(models.CancelReasons[0], *cancelled.CancelReason)

	_, err = s.orderService.CancelOrder(s.ctx, "buyer-1", o.OrderCode, "again")
	s.ErrorIs(err, ErrInvalidTransition)

	other := s.placeCOD("buyer-1", "prod-2", 1)
	_, err = s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", other.OrderCode)
	s.Require().NoError(err)
	_, err = s.orderService.CancelOrder(s.ctx, "buyer-1", other.OrderCode, "đổi ý")
	s.ErrorIs(err, ErrInvalidTransition)

	stored, err := s.orderService.GetOrder(s.ctx, other.OrderCode)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPreparing, stored.Status)
}

func (s *ServiceTestSuite) TestConfirmDrainsStock() {
	o := s.placeCOD("buyer-1", "prod-1", 3)

	_, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-other", o.OrderCode)
	s.ErrorIs(err, ErrForbidden)

	confirmed, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPreparing, confirmed.Status)

	p, err := s.catalog.GetProduct(s.ctx, "prod-1")
	s.Require().NoError(err)
	s.Equal(0, p.Stock)
	s.Equal(3, p.Sold)
	s.Equal(models.ProductStatusOutOfStock, p.Status)

	_, err = s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
	s.ErrorIs(err, ErrInvalidTransition)
	s.Empty(s.shipments.orders)
}

func (s *ServiceTestSuite) TestConfirmWithoutStock() {
	first := s.placeCOD("buyer-1", "prod-1", 2)
	second := s.placeCOD("buyer-1", "prod-1", 2)

	_, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", first.OrderCode)
	s.Require().NoError(err)

	_, err = s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", second.OrderCode)
	s.ErrorIs(err, ErrInsufficientStock)

	stored, err := s.orderService.GetOrder(s.ctx, second.OrderCode)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusAwaitingConfirmation, stored.Status)
}

func (s *ServiceTestSuite) TestConfirmCreatesCarrierShipment() {
	s.orderService = NewOrderService(s.orders, s.carts, s.catalog, WithShipments(s.shipments), WithPublisher(s.publisher))
	o := s.placeCOD("buyer-1", "prod-2", 2)

	_, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)

	s.Require().Len(s.shipments.orders, 1)
	shipment := s.shipments.orders[0]
	s.Equal(o.OrderCode, shipment.Order.ID)
	s.Equal("Tiệm Áo", shipment.Order.PickName)
	s.Equal("0912345678", shipment.Order.PickTel)
	s.Equal("Nguyễn Văn A", shipment.Order.Name)
	s.Equal("Khác", shipment.Order.Hamlet)
	s.Equal(int64(2*350000+25000), shipment.Order.PickMoney)
	s.Equal(int64(700000), shipment.Order.Value)
	s.Require().Len(shipment.Products, 1)
	s.InDelta(0.8, shipment.Products[0].Weight, 1e-9)
}

func (s *ServiceTestSuite) TestShipmentSkippedForInvalidPhone() {
	s.Require().NoError(s.catalog.SaveCustomer(s.ctx, &models.Customer{
		ID: "buyer-3", Name: "Lê Văn C", Phone: "12345", Province: "Đà Nẵng", District: "Hải Châu", Address: "3 Bạch Đằng",
	}))
	s.orderService = NewOrderService(s.orders, s.carts, s.catalog, WithShipments(s.shipments))
	o := s.placeCOD("buyer-3", "prod-2", 1)

	confirmed, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPreparing, confirmed.Status)
	s.Empty(s.shipments.orders)
}

func (s *ServiceTestSuite) TestShipmentSkippedWithoutShopPhone() {
	shop, err := s.catalog.GetShop(s.ctx, "shop-1")
	s.Require().NoError(err)
	shop.Phone = ""
	s.Require().NoError(s.catalog.SaveShop(s.ctx, shop))

	s.orderService = NewOrderService(s.orders, s.carts, s.catalog, WithShipments(s.shipments))
	o := s.placeCOD("buyer-1", "prod-2", 1)

	confirmed, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPreparing, confirmed.Status)
	s.Empty(s.shipments.orders)
}

func (s *ServiceTestSuite) TestShipmentFailureDoesNotUndoConfirmation() {
	s.shipments.err = errCarrierDown
	s.orderService = NewOrderService(s.orders, s.carts, s.catalog, WithShipments(s.shipments))
	o := s.placeCOD("buyer-1", "prod-2", 1)

	confirmed, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPreparing, confirmed.Status)
}

func (s *ServiceTestSuite) TestLifecycleThroughRating() {
	o := s.placeCOD("buyer-1", "prod-2", 1)

	_, err := s.orderService.MarkInTransit(s.ctx, "shop-1", o.OrderCode)
	s.ErrorIs(err, ErrInvalidTransition)

	_, err = s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)
	_, err = s.orderService.MarkInTransit(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)

	_, err = s.orderService.SubmitRating(s.ctx, "buyer-1", o.OrderCode, 5, "")
	s.ErrorIs(err, ErrInvalidTransition)

	received, err := s.orderService.ConfirmReceived(s.ctx, "buyer-1", o.OrderCode)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusReceived, received.Status)

	_, err = s.orderService.SubmitRating(s.ctx, "buyer-1", o.OrderCode, 6, "")
	s.ErrorIs(err, ErrValidation)
	_, err = s.orderService.SubmitRating(s.ctx, "buyer-2", o.OrderCode, 5, "")
	s.ErrorIs(err, ErrForbidden)

	outcome, err := s.orderService.SubmitRating(s.ctx, "buyer-1", o.OrderCode, 5, "  Rất tốt ")
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCompleted, outcome.Order.Status)
	s.Require().NotNil(outcome.Order.Rating)
	s.Equal(5, *outcome.Order.Rating)
	s.Require().NotNil(outcome.Order.RatingComment)
	s.Equal("Rất tốt", *outcome.Order.RatingComment)
	s.InDelta(5.0, outcome.ProductRating, 1e-9)

	s.GreaterOrEqual(s.publisher.count(messaging.TopicOrderStatusChanged), 4)
}

func (s *ServiceTestSuite) TestShopMarksAwaitingRating() {
	o := s.placeCOD("buyer-1", "prod-2", 1)
	_, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)
	_, err = s.orderService.MarkInTransit(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)

	_, err = s.orderService.ConfirmReceived(s.ctx, "buyer-2", o.OrderCode)
	s.ErrorIs(err, ErrForbidden)

	awaiting, err := s.orderService.MarkAwaitingRating(s.ctx, "shop-1", o.OrderCode)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusAwaitingRating, awaiting.Status)

	// The buyer may rate straight from here.
	outcome, err := s.orderService.SubmitRating(s.ctx, "buyer-1", o.OrderCode, 4, "ok")
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCompleted, outcome.Order.Status)
}

func (s *ServiceTestSuite) TestRatingAverage() {
	var last *RatingOutcome
	for _, stars := range []int{4, 5, 3} {
		o := s.placeCOD("buyer-1", "prod-2", 1)
		_, err := s.orderService.ConfirmAndHandToCarrier(s.ctx, "shop-1", o.OrderCode)
		s.Require().NoError(err)
		_, err = s.orderService.MarkInTransit(s.ctx, "shop-1", o.OrderCode)
		s.Require().NoError(err)
		_, err = s.orderService.ConfirmReceived(s.ctx, "buyer-1", o.OrderCode)
		s.Require().NoError(err)
		last, err = s.orderService.SubmitRating(s.ctx, "buyer-1", o.OrderCode, stars, "")
		s.Require().NoError(err)
	}

	s.InDelta(4.0, last.ProductRating, 1e-9)
	s.InDelta(4.0, last.ShopRating, 1e-9)

	p, err := s.catalog.GetProduct(s.ctx, "prod-2")
	s.Require().NoError(err)
	s.InDelta(4.0, p.Rating, 1e-9)
}

func (s *ServiceTestSuite) TestOrderLookupAndListing() {
	o := s.placeCOD("buyer-1", "prod-2", 1)

	got, err := s.orderService.GetBuyerOrder(s.ctx, "buyer-1", o.OrderCode)
	s.Require().NoError(err)
	s.Equal(o.OrderCode, got.OrderCode)
	s.Equal(o.TotalCost, got.TotalCost)
	s.Equal(o.ShippingFee, got.ShippingFee)

	_, err = s.orderService.GetBuyerOrder(s.ctx, "buyer-2", o.OrderCode)
	s.ErrorIs(err, ErrForbidden)
	_, err = s.orderService.GetOrder(s.ctx, "NOPE000000")
	s.ErrorIs(err, ErrNotFound)

	status := models.OrderStatusCancelled
	none, err := s.orderService.ListBuyerOrders(s.ctx, "buyer-1", repository.OrderFilter{Status: &status})
	s.Require().NoError(err)
	s.NotNil(none)
	s.Empty(none)

	shopOrders, err := s.orderService.ListShopOrders(s.ctx, "shop-1", repository.OrderFilter{})
	s.Require().NoError(err)
	s.Len(shopOrders, 1)
}

func (s *ServiceTestSuite) TestNewOrderCode() {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := NewOrderCode()
		s.Require().NoError(err)
		s.Regexp(orderCodePattern, code)
		s.False(seen[code])
		seen[code] = true
	}
}
