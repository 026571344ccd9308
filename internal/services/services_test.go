package services

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"storefront-backend/internal/models"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/repository/sqlite"
	"storefront-backend/internal/sessionstore"
	"storefront-backend/internal/testutil"
)

var errCarrierDown = errors.New("carrier down")

// fakeQuoter answers fee lookups through fn.
type fakeQuoter struct {
	mu       sync.Mutex
	requests []models.FeeRequest
	fn       func(req models.FeeRequest) (int64, error)
}

func (q *fakeQuoter) Fee(ctx context.Context, req models.FeeRequest) (int64, error) {
	q.mu.Lock()
	q.requests = append(q.requests, req)
	q.mu.Unlock()
	if q.fn == nil {
		return 30000, nil
	}
	return q.fn(req)
}

type fakeShipments struct {
	mu     sync.Mutex
	orders []models.ShipmentOrder
	err    error
}

func (f *fakeShipments) CreateShipment(ctx context.Context, order models.ShipmentOrder) (*models.ShipmentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	if f.err != nil {
		return nil, f.err
	}
	return &models.ShipmentResponse{Success: true}, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	created   []models.PaymentLinkRequest
	cancelled []string
	looked    []string
	createErr error
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, req models.PaymentLinkRequest) (*models.PaymentLinkData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	code := strconv.FormatInt(req.OrderCode, 10)
	return &models.PaymentLinkData{
		CheckoutURL:   "https://pay.example/web/" + code,
		OrderCode:     req.OrderCode,
		PaymentLinkID: "link-" + code,
		Amount:        req.Amount,
	}, nil
}

func (g *fakeGateway) CancelPaymentLink(ctx context.Context, paymentID, reason string) (*models.PaymentLinkData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, paymentID+"|"+reason)
	return &models.PaymentLinkData{PaymentLinkID: paymentID, Status: "CANCELLED"}, nil
}

func (g *fakeGateway) GetPaymentLink(ctx context.Context, paymentID string) (*models.PaymentLinkData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.looked = append(g.looked, paymentID)
	return &models.PaymentLinkData{PaymentLinkID: paymentID, Status: "PAID"}, nil
}

func (g *fakeGateway) createCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

// recordingPublisher keeps published events in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

// ServiceTestSuite wires every service to an in-memory database and fakes
// for the provider proxies.
type ServiceTestSuite struct {
	suite.Suite
	db  *sql.DB
	ctx context.Context

	catalog  repository.CatalogRepository
	carts    repository.CartRepository
	orders   repository.OrderRepository
	sessions repository.PaymentSessionRepository

	quoter    *fakeQuoter
	shipments *fakeShipments
	gateway   *fakeGateway
	store     *sessionstore.MemoryStore
	publisher *recordingPublisher

	cartService     *CartService
	shippingService *ShippingService
	orderService    *OrderService
	paymentService  *PaymentService
	checkoutService *CheckoutService
}

func (s *ServiceTestSuite) SetupTest() {
	db := testutil.NewTestDB(s.T())

	s.db = db
	s.ctx = context.Background()
	s.catalog = sqlite.NewCatalogRepository(db)
	s.carts = sqlite.NewCartRepository(db)
	s.orders = sqlite.NewOrderRepository(db)
	s.sessions = sqlite.NewPaymentSessionRepository(db)

	s.quoter = &fakeQuoter{}
	s.shipments = &fakeShipments{}
	s.gateway = &fakeGateway{}
	s.store = sessionstore.NewMemoryStore()
	s.publisher = &recordingPublisher{}

	s.cartService = NewCartService(s.catalog, s.carts)
	s.shippingService = NewShippingService(s.catalog, s.quoter, 4)
	s.orderService = NewOrderService(s.orders, s.carts, s.catalog, WithPublisher(s.publisher))
	s.paymentService = NewPaymentService(s.sessions, s.orders, s.gateway, s.store, s.publisher, 15*time.Minute)
	s.checkoutService = NewCheckoutService(s.cartService, s.shippingService, s.orderService, s.paymentService)

	s.seedCatalog()
}

func (s *ServiceTestSuite) seedCatalog() {
	s.Require().NoError(s.catalog.SaveShop(s.ctx, &models.Shop{
		ID: "shop-1", OwnerID: "owner-1", Name: "Tiệm Áo", Province: "Hà Nội", District: "Cầu Giấy",
		Ward: "Dịch Vọng", Address: "12 Trần Thái Tông", Phone: "091 234 5678", BanState: models.ShopActive,
	}))
	s.Require().NoError(s.catalog.SaveShop(s.ctx, &models.Shop{
		ID: "shop-banned", OwnerID: "owner-2", Name: "Shop bị khóa", Province: "Hà Nội", District: "Ba Đình",
		BanState: models.ShopBanned,
	}))

	for _, p := range []models.Product{
		{ID: "prod-1", ShopID: "shop-1", Name: "Áo thun", Price: 120000, Stock: 3, Status: models.ProductStatusInStock},
		{ID: "prod-2", ShopID: "shop-1", Name: "Quần jean", Price: 350000, Weight: 800, Stock: 30, Status: models.ProductStatusInStock},
		{ID: "prod-out", ShopID: "shop-1", Name: "Mũ", Price: 90000, Stock: 0, Status: models.ProductStatusOutOfStock},
		{ID: "prod-banned", ShopID: "shop-banned", Name: "Giày", Price: 500000, Stock: 5, Status: models.ProductStatusInStock},
	} {
		p := p
		s.Require().NoError(s.catalog.SaveProduct(s.ctx, &p))
	}

	s.Require().NoError(s.catalog.SaveCustomer(s.ctx, &models.Customer{
		ID: "buyer-1", Name: "Nguyễn Văn A", Phone: "0900000001", Province: "TP. Hồ Chí Minh",
		District: "Quận 1", Ward: "Bến Nghé", Address: "1 Lê Lợi",
	}))
	s.Require().NoError(s.catalog.SaveCustomer(s.ctx, &models.Customer{ID: "buyer-noaddr", Name: "B"}))
}

// placeCOD puts the product in the cart and places a COD order for it.
func (s *ServiceTestSuite) placeCOD(buyerID, productID string, qty int) *models.Order {
	_, err := s.cartService.AddToCart(s.ctx, buyerID, productID, qty)
	s.Require().NoError(err)
	lines, err := s.cartService.CollectSelection(s.ctx, buyerID, []string{productID})
	s.Require().NoError(err)
	res, err := s.orderService.PlaceOrder(s.ctx, PlaceOrderRequest{
		BuyerID:       buyerID,
		Lines:         lines,
		Fees:          map[string]int64{productID: 25000},
		PaymentMethod: models.PaymentMethodCOD,
	})
	s.Require().NoError(err)
	s.Require().Len(res.Orders, 1)
	return res.Orders[0]
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
