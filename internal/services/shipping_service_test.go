package services

import (
	"storefront-backend/internal/models"
)

func (s *ServiceTestSuite) TestResolveFeesPartialFailure() {
	s.quoter.fn = func(req models.FeeRequest) (int64, error) {
		if req.Weight == 800 {
			return 0, errCarrierDown
		}
		return 5000, nil
	}

	quote := s.shippingService.ResolveFees(s.ctx, "buyer-1", []models.FeeItem{
		{ProductID: "prod-1", Quantity: 1},
		{ProductID: "prod-2", Quantity: 1},
	})

	s.Equal(map[string]int64{"prod-1": 5000, "prod-2": 0}, quote.Fees)
	s.Equal([]string{"prod-2"}, quote.Failed)
	s.Equal(int64(5000), quote.Total([]string{"prod-1", "prod-2"}))
}

func (s *ServiceTestSuite) TestResolveFeesBuildsCarrierRequest() {
	quote := s.shippingService.ResolveFees(s.ctx, "buyer-1", []models.FeeItem{{ProductID: "prod-2", Quantity: 2}})
	s.Empty(quote.Failed)
	s.Equal(int64(30000), quote.Fee("prod-2"))

	s.Require().Len(s.quoter.requests, 1)
	req := s.quoter.requests[0]
	s.Equal("Hà Nội", req.PickProvince)
	s.Equal("Cầu Giấy", req.PickDistrict)
	s.Equal("TP. Hồ Chí Minh", req.Province)
	s.Equal("Quận 1", req.District)
	s.Equal("1 Lê Lợi", req.Address)
	s.Equal(1600, req.Weight)
	s.Equal(int64(700000), req.Value)
	s.Equal(models.ShippingTransportRoad, req.Transport)
	s.Equal(models.ShippingDeliverOptNone, req.DeliverOption)
}

func (s *ServiceTestSuite) TestResolveFeesUsesDefaultWeight() {
	s.shippingService.ResolveFees(s.ctx, "buyer-1", []models.FeeItem{{ProductID: "prod-1", Quantity: 3}})
	s.Require().Len(s.quoter.requests, 1)
	s.Equal(3*models.DefaultProductWeight, s.quoter.requests[0].Weight)
}

func (s *ServiceTestSuite) TestResolveFeesWithoutAddressDefaultsToZero() {
	items := []models.FeeItem{{ProductID: "prod-1", Quantity: 1}, {ProductID: "prod-2", Quantity: 1}}

	for _, buyer := range []string{"buyer-noaddr", "nobody"} {
		quote := s.shippingService.ResolveFees(s.ctx, buyer, items)
		s.Equal(map[string]int64{"prod-1": 0, "prod-2": 0}, quote.Fees, buyer)
		s.ElementsMatch([]string{"prod-1", "prod-2"}, quote.Failed, buyer)
	}
	s.Empty(s.quoter.requests)
}

func (s *ServiceTestSuite) TestResolveFeesUnknownProduct() {
	quote := s.shippingService.ResolveFees(s.ctx, "buyer-1", []models.FeeItem{
		{ProductID: "missing", Quantity: 1},
		{ProductID: "prod-2", Quantity: 1},
	})
	s.Equal(int64(0), quote.Fee("missing"))
	s.Equal(int64(30000), quote.Fee("prod-2"))
	s.Equal([]string{"missing"}, quote.Failed)
}

func (s *ServiceTestSuite) TestResolveFeesEmpty() {
	quote := s.shippingService.ResolveFees(s.ctx, "buyer-1", nil)
	s.Empty(quote.Fees)
	s.Empty(quote.Failed)
}
