package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/metrics"
	"storefront-backend/internal/models"
	"storefront-backend/internal/repository"
)

// ShippingService resolves per-product shipping fees
type ShippingService struct {
	catalog     repository.CatalogRepository
	quoter      FeeQuoter
	concurrency int
}

// NewShippingService creates a new shipping service. concurrency bounds the
// number of fee lookups in flight.
func NewShippingService(catalog repository.CatalogRepository, quoter FeeQuoter, concurrency int) *ShippingService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ShippingService{catalog: catalog, quoter: quoter, concurrency: concurrency}
}

// ResolveFees quotes every item to the buyer's address. An item whose lookup
// fails for any reason gets a fee of 0 and is listed in Failed; the batch
// always completes.
func (s *ShippingService) ResolveFees(ctx context.Context, buyerID string, items []models.FeeItem) models.FeeQuote {
	quote := models.FeeQuote{Fees: make(map[string]int64, len(items)), Failed: []string{}}
	if len(items) == 0 {
		return quote
	}

	log := logging.Ctx(ctx)

	customer, err := s.catalog.GetCustomer(ctx, buyerID)
	if err == nil && !customer.HasDeliveryAddress() {
		err = validationError("customer %s has no delivery address", buyerID)
	}
	if err != nil {
		log.Warn().Err(err).Str("buyer_id", buyerID).Msg("Shipping fees default to zero")
		for _, it := range items {
			quote.Fees[it.ProductID] = 0
			quote.Failed = append(quote.Failed, it.ProductID)
			metrics.ShippingFeeFailures.Inc()
		}
		return quote
	}

	fees := make([]int64, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			fees[i], errs[i] = s.feeFor(ctx, customer, it)
			return nil
		})
	}
	_ = g.Wait()

	for i, it := range items {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("product_id", it.ProductID).Msg("Shipping fee lookup failed")
			metrics.ShippingFeeFailures.Inc()
			quote.Fees[it.ProductID] = 0
			quote.Failed = append(quote.Failed, it.ProductID)
			continue
		}
		quote.Fees[it.ProductID] = fees[i]
	}
	return quote
}

func (s *ShippingService) feeFor(ctx context.Context, customer *models.Customer, item models.FeeItem) (int64, error) {
	if item.Quantity < 1 {
		return 0, validationError("quantity must be at least 1")
	}

	product, err := s.catalog.GetProduct(ctx, item.ProductID)
	if err != nil {
		return 0, err
	}
	shop, err := s.catalog.GetShop(ctx, product.ShopID)
	if err != nil {
		return 0, err
	}
	if !shop.HasPickupAddress() {
		return 0, validationError("shop %s has no pickup address", shop.ID)
	}

	fee, err := s.quoter.Fee(ctx, models.FeeRequest{
		PickProvince:  shop.Province,
		PickDistrict:  shop.District,
		Province:      customer.Province,
		District:      customer.District,
		Address:       customer.Address,
		Weight:        product.ShippingWeight() * item.Quantity,
		Value:         product.Price * int64(item.Quantity),
		Transport:     models.ShippingTransportRoad,
		DeliverOption: models.ShippingDeliverOptNone,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to quote fee: %w", err)
	}
	return fee, nil
}
