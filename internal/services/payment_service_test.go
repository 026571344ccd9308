package services

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"storefront-backend/internal/messaging"
	"storefront-backend/internal/models"
	"storefront-backend/internal/sessionstore"
)

// placeQR places a QR order for one product and opens its payment session.
func (s *ServiceTestSuite) placeQR(productID string, qty int) (*PlaceOrderResult, *models.PaymentSession) {
	_, err := s.cartService.AddToCart(s.ctx, "buyer-1", productID, qty)
	s.Require().NoError(err)
	lines, err := s.cartService.CollectSelection(s.ctx, "buyer-1", []string{productID})
	s.Require().NoError(err)
	res, err := s.orderService.PlaceOrder(s.ctx, PlaceOrderRequest{
		BuyerID:       "buyer-1",
		Lines:         lines,
		Fees:          map[string]int64{productID: 20000},
		PaymentMethod: models.PaymentMethodQR,
	})
	s.Require().NoError(err)

	session, err := s.paymentService.StartSession(s.ctx, "buyer-1", res.OrderCodes, res.GrandTotal)
	s.Require().NoError(err)
	return res, session
}

func successURL(code int64) string {
	return fmt.Sprintf("storefront://payment-success?code=00&id=abc&cancel=false&status=PAID&success=true&orderCode=%d", code)
}

func cancelURL(code int64) string {
	return fmt.Sprintf("https://shop.example/payment-cancel?code=00&id=abc&cancel=true&status=CANCELLED&orderCode=%d", code)
}

func (s *ServiceTestSuite) TestStartSession() {
	res, session := s.placeQR("prod-2", 2)

	s.Equal(models.PaymentSessionCreated, session.State)
	s.Equal(res.GrandTotal, session.Amount)
	s.GreaterOrEqual(session.GatewayOrderCode, int64(1))
	s.LessOrEqual(session.GatewayOrderCode, int64(maxGatewayOrderCode))
	s.WithinDuration(time.Now().Add(15*time.Minute), session.ExpiresAt, 5*time.Second)

	stored, err := s.paymentService.GetSession(s.ctx, "buyer-1", session.ID)
	s.Require().NoError(err)
	s.Equal(res.OrderCodes, stored.OrderCodes)

	_, err = s.paymentService.GetSession(s.ctx, "buyer-2", session.ID)
	s.ErrorIs(err, ErrForbidden)

	_, err = s.paymentService.StartSession(s.ctx, "buyer-1", nil, 1000)
	s.ErrorIs(err, ErrEmptyOrder)
	_, err = s.paymentService.StartSession(s.ctx, "buyer-1", res.OrderCodes, 0)
	s.ErrorIs(err, ErrValidation)
}

func (s *ServiceTestSuite) TestCreatePaymentLinkOnce() {
	res, session := s.placeQR("prod-2", 1)

	linked, err := s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentSessionAwaitingRedirect, linked.State)
	s.NotEmpty(linked.CheckoutURL)
	s.Equal(fmt.Sprintf("link-%d", session.GatewayOrderCode), linked.PaymentLinkID)

	s.Require().Equal(1, s.gateway.createCalls())
	req := s.gateway.created[0]
	s.Equal(session.GatewayOrderCode, req.OrderCode)
	s.Equal(res.GrandTotal, req.Amount)
	s.Equal("Đơn hàng "+res.OrderCodes[0], req.Description)
	s.LessOrEqual(len([]rune(req.Description)), 25)
	s.Equal([]models.PaymentItem{{Name: "Quần jean", Quantity: 1, Price: 350000}}, req.Items)

	again, err := s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(linked.CheckoutURL, again.CheckoutURL)
	s.Equal(1, s.gateway.createCalls())
}

func (s *ServiceTestSuite) TestCreatePaymentLinkGuardHeld() {
	_, session := s.placeQR("prod-2", 1)

	ok, err := s.store.AcquireLinkGuard(s.ctx, session.ID, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, err = s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.ErrorIs(err, ErrLinkInProgress)
	s.Equal(0, s.gateway.createCalls())
}

func (s *ServiceTestSuite) TestCreatePaymentLinkFailure() {
	s.gateway.createErr = errCarrierDown
	_, session := s.placeQR("prod-2", 1)

	_, err := s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.ErrorIs(err, ErrPaymentLink)

	stored, err := s.sessions.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentSessionCreated, stored.State)
	s.Empty(stored.CheckoutURL)
}

func (s *ServiceTestSuite) TestSuccessSignalMarksPaid() {
	res, session := s.placeQR("prod-2", 1)
	_, err := s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)

	result, err := s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelDeepLink,
		RawURL:  successURL(session.GatewayOrderCode),
	})
	s.Require().NoError(err)
	s.Equal(SignalResultPaid, result.Outcome)
	s.Equal(models.PaymentSessionPaid, result.State)
	s.Equal(res.OrderCodes, result.OrderCodes)

	o, err := s.orderService.GetOrder(s.ctx, res.OrderCodes[0])
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, o.PaymentStatus)
	s.Equal(models.OrderStatusAwaitingConfirmation, o.Status)

	s.Equal([]string{fmt.Sprintf("link-%d", session.GatewayOrderCode)}, s.gateway.looked)
	s.Equal(1, s.publisher.count(messaging.TopicPaymentSessionClosed))
}

func (s *ServiceTestSuite) TestCancelSignalCancelsOrders() {
	res, session := s.placeQR("prod-2", 1)
	_, err := s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)

	result, err := s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelNavigation,
		RawURL:  cancelURL(session.GatewayOrderCode),
	})
	s.Require().NoError(err)
	s.Equal(SignalResultCancelled, result.Outcome)
	s.Equal(models.PaymentSessionCancelled, result.State)

	o, err := s.orderService.GetOrder(s.ctx, res.OrderCodes[0])
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCancelled, o.Status)
	s.Equal(models.PaymentStatusCancelled, o.PaymentStatus)
	s.Require().NotNil(o.CancelReason)
	s.Equal(models.CancelReasonPaymentCancelled, *o.CancelReason)

	s.Require().Len(s.gateway.cancelled, 1)
	s.Equal(fmt.Sprintf("link-%d|%s", session.GatewayOrderCode, models.CancelReasonPaymentCancelled), s.gateway.cancelled[0])
}

func (s *ServiceTestSuite) TestSecondSignalIsIgnored() {
	res, session := s.placeQR("prod-2", 1)
	_, err := s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)

	first, err := s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelDeepLink,
		RawURL:  successURL(session.GatewayOrderCode),
	})
	s.Require().NoError(err)
	s.Equal(SignalResultPaid, first.Outcome)

	for _, sig := range []models.PaymentSignal{
		{Channel: models.SignalChannelNavigation, RawURL: successURL(session.GatewayOrderCode)},
		{Channel: models.SignalChannelNavigation, RawURL: cancelURL(session.GatewayOrderCode)},
	} {
		second, err := s.paymentService.HandleSignal(s.ctx, sig)
		s.Require().NoError(err)
		s.Equal(SignalResultIgnored, second.Outcome)
		s.Equal(models.PaymentSessionPaid, second.State)
	}

	o, err := s.orderService.GetOrder(s.ctx, res.OrderCodes[0])
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, o.PaymentStatus)
	s.Equal(models.OrderStatusAwaitingConfirmation, o.Status)
	s.Empty(s.gateway.cancelled)
	s.Equal(1, s.publisher.count(messaging.TopicPaymentSessionClosed))
}

func (s *ServiceTestSuite) TestUnrecognizedSignals() {
	_, session := s.placeQR("prod-2", 1)

	for _, raw := range []string{
		"storefront://somewhere-else?orderCode=1",
		"storefront://payment-success?success=false&orderCode=1",
		"storefront://payment-cancel?status=PAID&orderCode=1",
		"storefront://payment-success?success=true",
		"storefront://payment-success?success=true&orderCode=abc",
		"%zz",
	} {
		_, err := s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{Channel: models.SignalChannelDeepLink, RawURL: raw})
		s.ErrorIs(err, ErrUnrecognizedSignal, raw)
	}

	_, err := s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelDeepLink,
		RawURL:  successURL(session.GatewayOrderCode + 1),
	})
	s.ErrorIs(err, ErrNotFound)

	stored, err := s.sessions.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentSessionCreated, stored.State)
}

func (s *ServiceTestSuite) TestExpireSessions() {
	linkedRes, linked := s.placeQR("prod-2", 1)
	_, err := s.paymentService.CreatePaymentLink(s.ctx, linked.ID)
	s.Require().NoError(err)
	_, unlinked := s.placeQR("prod-1", 1)
	_, paid := s.placeQR("prod-2", 1)
	_, err = s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelDeepLink, RawURL: successURL(paid.GatewayOrderCode),
	})
	s.Require().NoError(err)

	n, err := s.paymentService.ExpireSessions(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(0, n)

	s.paymentService.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	n, err = s.paymentService.ExpireSessions(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(2, n)

	for _, id := range []string{linked.ID, unlinked.ID} {
		stored, err := s.sessions.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.PaymentSessionAbandoned, stored.State)
	}
	stored, err := s.sessions.Get(s.ctx, paid.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentSessionPaid, stored.State)

	o, err := s.orderService.GetOrder(s.ctx, linkedRes.OrderCodes[0])
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCancelled, o.Status)
	s.Equal(models.PaymentStatusAbandoned, o.PaymentStatus)
	s.Require().NotNil(o.CancelReason)
	s.Equal(models.CancelReasonPaymentExpired, *o.CancelReason)

	// Only the session that reached the gateway needs a cancel there.
	s.Require().Len(s.gateway.cancelled, 1)
	s.Equal(fmt.Sprintf("link-%d|%s", linked.GatewayOrderCode, models.CancelReasonPaymentExpired), s.gateway.cancelled[0])

	// A late signal after expiry changes nothing.
	late, err := s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelNavigation, RawURL: successURL(linked.GatewayOrderCode),
	})
	s.Require().NoError(err)
	s.Equal(SignalResultIgnored, late.Outcome)
	s.Equal(models.PaymentSessionAbandoned, late.State)
}

func (s *ServiceTestSuite) TestSchedulerSweep() {
	_, session := s.placeQR("prod-2", 1)
	s.paymentService.now = func() time.Time { return time.Now().Add(time.Hour) }

	scheduler := NewSchedulerService(s.paymentService)
	s.Equal(1, scheduler.RunOnce(s.ctx))
	s.Equal(0, scheduler.RunOnce(s.ctx))

	stored, err := s.sessions.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentSessionAbandoned, stored.State)
}

func (s *ServiceTestSuite) TestSubscribeReceivesStateChanges() {
	_, session := s.placeQR("prod-2", 1)

	_, _, _, err := s.paymentService.Subscribe(s.ctx, "buyer-2", session.ID)
	s.ErrorIs(err, ErrForbidden)

	current, events, cancel, err := s.paymentService.Subscribe(s.ctx, "buyer-1", session.ID)
	s.Require().NoError(err)
	defer cancel()
	s.Equal(models.PaymentSessionCreated, current.State)

	_, err = s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)
	_, err = s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelDeepLink, RawURL: cancelURL(session.GatewayOrderCode),
	})
	s.Require().NoError(err)

	var states []models.PaymentSessionState
	for len(states) < 2 {
		select {
		case ev := <-events:
			s.Equal(session.ID, ev.SessionID)
			states = append(states, ev.State)
		case <-time.After(2 * time.Second):
			s.FailNow("timed out waiting for session events", "got %v", states)
		}
	}
	s.Equal([]models.PaymentSessionState{models.PaymentSessionAwaitingRedirect, models.PaymentSessionCancelled}, states)
}

// resolvingStore runs beforeSubscribe ahead of the real subscription and
// counts released subscriptions.
type resolvingStore struct {
	SessionCoordinator
	beforeSubscribe func()
	released        int
}

func (r *resolvingStore) Subscribe(ctx context.Context, sessionID string) (<-chan models.SessionEvent, func(), error) {
	if r.beforeSubscribe != nil {
		r.beforeSubscribe()
		r.beforeSubscribe = nil
	}
	events, cancel, err := r.SessionCoordinator.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return events, func() {
		r.released++
		cancel()
	}, nil
}

func (s *ServiceTestSuite) TestSubscribeSeesChangeBeforeSubscription() {
	store := &resolvingStore{SessionCoordinator: s.store}
	s.paymentService = NewPaymentService(s.sessions, s.orders, s.gateway, store, s.publisher, 15*time.Minute)

	_, session := s.placeQR("prod-2", 1)
	_, err := s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)

	store.beforeSubscribe = func() {
		_, err := s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
			Channel: models.SignalChannelDeepLink, RawURL: cancelURL(session.GatewayOrderCode),
		})
		s.Require().NoError(err)
	}

	current, _, cancel, err := s.paymentService.Subscribe(s.ctx, "buyer-1", session.ID)
	s.Require().NoError(err)
	defer cancel()
	s.Equal(models.PaymentSessionCancelled, current.State)
	s.True(current.State.IsTerminal())
}

func (s *ServiceTestSuite) TestSubscribeReleasesOnForbidden() {
	store := &resolvingStore{SessionCoordinator: s.store}
	s.paymentService = NewPaymentService(s.sessions, s.orders, s.gateway, store, s.publisher, 15*time.Minute)
	_, session := s.placeQR("prod-2", 1)

	_, _, _, err := s.paymentService.Subscribe(s.ctx, "buyer-2", session.ID)
	s.ErrorIs(err, ErrForbidden)
	s.Equal(1, store.released)
}

func (s *ServiceTestSuite) TestSignalFromAnotherBuyerIsForbidden() {
	_, session := s.placeQR("prod-2", 1)
	_, err := s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)

	_, err = s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelDeepLink, RawURL: successURL(session.GatewayOrderCode), BuyerID: "buyer-2",
	})
	s.ErrorIs(err, ErrForbidden)

	stored, err := s.paymentService.GetSession(s.ctx, "buyer-1", session.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentSessionAwaitingRedirect, stored.State)

	result, err := s.paymentService.HandleSignal(s.ctx, models.PaymentSignal{
		Channel: models.SignalChannelDeepLink, RawURL: successURL(session.GatewayOrderCode), BuyerID: "buyer-1",
	})
	s.Require().NoError(err)
	s.Equal(SignalResultPaid, result.Outcome)
}

func (s *ServiceTestSuite) TestPaymentFlowWithRedisStore() {
	mr := miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := sessionstore.NewRedisStoreWithClient(client, "test")
	s.paymentService = NewPaymentService(s.sessions, s.orders, s.gateway, store, s.publisher, 15*time.Minute)

	_, session := s.placeQR("prod-2", 1)
	_, events, cancel, err := s.paymentService.Subscribe(s.ctx, "buyer-1", session.ID)
	s.Require().NoError(err)
	defer cancel()

	_, err = s.paymentService.CreatePaymentLink(s.ctx, session.ID)
	s.Require().NoError(err)

	// A second replica sharing the store cannot create another link.
	other := NewPaymentService(s.sessions, s.orders, s.gateway, store, s.publisher, 15*time.Minute)
	_, fresh := s.placeQR("prod-1", 1)
	ok, err := store.AcquireLinkGuard(s.ctx, fresh.ID, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)
	_, err = other.CreatePaymentLink(s.ctx, fresh.ID)
	s.ErrorIs(err, ErrLinkInProgress)

	select {
	case ev := <-events:
		s.Equal(models.PaymentSessionAwaitingRedirect, ev.State)
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for redis event")
	}
}
