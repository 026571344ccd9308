package services

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/messaging"
	"storefront-backend/internal/metrics"
	"storefront-backend/internal/models"
	"storefront-backend/internal/providers/payos"
	"storefront-backend/internal/repository"
)

const (
	// DefaultPaymentTimeout is how long a session may wait for a gateway outcome.
	DefaultPaymentTimeout = 15 * time.Minute

	// linkGuardGrace keeps the guard alive past the session deadline.
	linkGuardGrace = 2 * time.Minute

	// maxGatewayOrderCode keeps codes within the range JSON numbers carry exactly.
	maxGatewayOrderCode = 1<<53 - 1
)

// Signal outcomes reported back to the client.
const (
	SignalResultPaid      = "paid"
	SignalResultCancelled = "cancelled"
	SignalResultIgnored   = "already_resolved"
)

// PaymentService orchestrates QR payment sessions
type PaymentService struct {
	sessions  repository.PaymentSessionRepository
	orders    repository.OrderRepository
	gateway   PaymentGateway
	store     SessionCoordinator
	publisher messaging.Publisher
	timeout   time.Duration
	now       func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	sessions repository.PaymentSessionRepository,
	orders repository.OrderRepository,
	gateway PaymentGateway,
	store SessionCoordinator,
	publisher messaging.Publisher,
	timeout time.Duration,
) *PaymentService {
	if timeout <= 0 {
		timeout = DefaultPaymentTimeout
	}
	if publisher == nil {
		publisher = messaging.LogPublisher{}
	}
	return &PaymentService{
		sessions:  sessions,
		orders:    orders,
		gateway:   gateway,
		store:     store,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
	}
}

func newGatewayOrderCode() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate gateway order code: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])%maxGatewayOrderCode) + 1, nil
}

// StartSession opens a payment session for a batch of placed orders.
func (s *PaymentService) StartSession(ctx context.Context, buyerID string, orderCodes []string, amount int64) (*models.PaymentSession, error) {
	if len(orderCodes) == 0 {
		return nil, ErrEmptyOrder
	}
	if amount <= 0 {
		return nil, validationError("payment amount must be positive")
	}

	code, err := newGatewayOrderCode()
	if err != nil {
		return nil, err
	}

	session := &models.PaymentSession{
		ID:               uuid.New().String(),
		BuyerID:          buyerID,
		GatewayOrderCode: code,
		Amount:           amount,
		State:            models.PaymentSessionCreated,
		ExpiresAt:        s.now().Add(s.timeout).UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := s.orders.LinkSession(ctx, session.ID, orderCodes); err != nil {
		return nil, fmt.Errorf("failed to link orders to session: %w", err)
	}
	session.OrderCodes = orderCodes
	metrics.PaymentSessions.WithLabelValues(string(models.PaymentSessionCreated)).Inc()

	logging.Ctx(ctx).Info().Str("session_id", session.ID).Int64("gateway_order_code", code).
		Int64("amount", amount).Msg("Payment session started")
	return session, nil
}

// CreatePaymentLink asks the gateway for a checkout link. It runs at most once
// per session: a session already awaiting redirect is returned as is, and a
// concurrent caller gets ErrLinkInProgress.
func (s *PaymentService) CreatePaymentLink(ctx context.Context, sessionID string) (*models.PaymentSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case session.State == models.PaymentSessionAwaitingRedirect:
		return session, nil
	case session.State != models.PaymentSessionCreated:
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, session.State)
	}

	acquired, err := s.store.AcquireLinkGuard(ctx, sessionID, s.timeout+linkGuardGrace)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire link guard: %w", err)
	}
	if !acquired {
		return nil, ErrLinkInProgress
	}

	orders, err := s.orders.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrEmptyOrder
	}

	items := make([]models.PaymentItem, 0, len(orders))
	for _, o := range orders {
		items = append(items, models.PaymentItem{Name: o.ProductName, Quantity: o.Quantity, Price: o.UnitPrice})
	}

	log := logging.Ctx(ctx).With().Str("session_id", sessionID).Logger()

	data, err := s.gateway.CreatePaymentLink(ctx, models.PaymentLinkRequest{
		OrderCode:   session.GatewayOrderCode,
		Amount:      session.Amount,
		Description: payos.TrimDescription("Đơn hàng " + orders[0].OrderCode),
		Items:       items,
	})
	if err != nil {
		log.Error().Err(err).Msg("Payment link creation failed")
		return nil, fmt.Errorf("%w: %v", ErrPaymentLink, err)
	}

	if err := s.sessions.MarkAwaitingRedirect(ctx, sessionID, data.CheckoutURL, data.PaymentLinkID); err != nil {
		return nil, conflictAsTransition(err)
	}
	metrics.PaymentSessions.WithLabelValues(string(models.PaymentSessionAwaitingRedirect)).Inc()
	s.notify(ctx, sessionID, models.PaymentSessionAwaitingRedirect)

	log.Info().Str("payment_link_id", data.PaymentLinkID).Msg("Payment link created")
	return s.sessions.Get(ctx, sessionID)
}

// SignalResult reports what a payment signal did.
type SignalResult struct {
	SessionID  string                     `json:"sessionId"`
	State      models.PaymentSessionState `json:"state"`
	Outcome    string                     `json:"outcome"`
	OrderCodes []string                   `json:"orderCodes"`
}

// HandleSignal applies a gateway redirect observed on either channel. The
// first signal to arrive resolves the session; later ones are no-ops.
func (s *PaymentService) HandleSignal(ctx context.Context, signal models.PaymentSignal) (*SignalResult, error) {
	channel := signal.Channel
	if channel != models.SignalChannelDeepLink && channel != models.SignalChannelNavigation {
		channel = "unknown"
	}

	result, err := s.handleSignal(ctx, signal)
	switch {
	case err != nil:
		metrics.PaymentSignals.WithLabelValues(channel, "rejected").Inc()
	default:
		metrics.PaymentSignals.WithLabelValues(channel, result.Outcome).Inc()
	}
	return result, err
}

func (s *PaymentService) handleSignal(ctx context.Context, signal models.PaymentSignal) (*SignalResult, error) {
	info, err := models.ParseRedirect(signal.RawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedSignal, err)
	}

	var (
		to      models.PaymentSessionState
		outcome repository.SessionOutcome
		label   string
	)
	switch {
	case info.IsCancel():
		to = models.PaymentSessionCancelled
		outcome = repository.SessionOutcome{
			PaymentStatus: models.PaymentStatusCancelled,
			CancelReason:  models.CancelReasonPaymentCancelled,
		}
		label = SignalResultCancelled
	case info.IsSuccess():
		to = models.PaymentSessionPaid
		outcome = repository.SessionOutcome{PaymentStatus: models.PaymentStatusPaid}
		label = SignalResultPaid
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedSignal, info.Path)
	}

	gatewayCode, err := strconv.ParseInt(info.OrderCode(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: missing order code", ErrUnrecognizedSignal)
	}
	session, err := s.sessions.GetByGatewayCode(ctx, gatewayCode)
	if err != nil {
		return nil, err
	}

	if signal.BuyerID != "" && signal.BuyerID != session.BuyerID {
		return nil, ErrForbidden
	}

	log := logging.Ctx(ctx).With().Str("session_id", session.ID).Str("channel", signal.Channel).Logger()

	if session.State.IsTerminal() {
		log.Debug().Str("state", string(session.State)).Msg("Signal for resolved session ignored")
		return &SignalResult{SessionID: session.ID, State: session.State, Outcome: SignalResultIgnored, OrderCodes: session.OrderCodes}, nil
	}

	switch to {
	case models.PaymentSessionCancelled:
		if _, err := s.gateway.CancelPaymentLink(ctx, session.PaymentID(), models.CancelReasonPaymentCancelled); err != nil {
			log.Warn().Err(err).Msg("Gateway cancel failed")
		}
	case models.PaymentSessionPaid:
		if data, err := s.gateway.GetPaymentLink(ctx, session.PaymentID()); err != nil {
			log.Warn().Err(err).Msg("Gateway status lookup failed")
		} else {
			log.Info().Str("gateway_status", data.Status).Int64("amount", data.Amount).Msg("Gateway status")
		}
	}

	resolved, err := s.resolve(ctx, session, to, outcome)
	if err != nil {
		return nil, err
	}
	if !resolved {
		current, err := s.sessions.Get(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		return &SignalResult{SessionID: current.ID, State: current.State, Outcome: SignalResultIgnored, OrderCodes: current.OrderCodes}, nil
	}

	log.Info().Str("state", string(to)).Msg("Payment session resolved")
	return &SignalResult{SessionID: session.ID, State: to, Outcome: label, OrderCodes: session.OrderCodes}, nil
}

// resolve applies a terminal state. It reports false when another signal
// already resolved the session.
func (s *PaymentService) resolve(ctx context.Context, session *models.PaymentSession, to models.PaymentSessionState, outcome repository.SessionOutcome) (bool, error) {
	err := s.sessions.Resolve(ctx, session.ID, to, outcome)
	if errors.Is(err, repository.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	metrics.PaymentSessions.WithLabelValues(string(to)).Inc()
	if outcome.CancelReason != "" {
		metrics.OrderTransitions.WithLabelValues(string(models.OrderStatusCancelled), string(models.ActorPayment)).
			Add(float64(len(session.OrderCodes)))
	}
	s.notify(ctx, session.ID, to)

	if err := s.publisher.PublishEvent(ctx, messaging.TopicPaymentSessionClosed, session.ID, messaging.PaymentSessionClosed{
		SessionID:  session.ID,
		State:      to,
		OrderCodes: session.OrderCodes,
		Amount:     session.Amount,
		ClosedAt:   s.now().UTC(),
	}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", session.ID).Msg("Failed to publish session event")
	}
	return true, nil
}

func (s *PaymentService) notify(ctx context.Context, sessionID string, state models.PaymentSessionState) {
	err := s.store.Publish(ctx, models.SessionEvent{SessionID: sessionID, State: state, At: s.now().UTC()})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("Failed to publish session update")
	}
}

// GetSession returns a session owned by the buyer
func (s *PaymentService) GetSession(ctx context.Context, buyerID, sessionID string) (*models.PaymentSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	return session, nil
}

// Subscribe streams state changes for a session the buyer owns. The returned
// cancel func must be called to release the subscription.
//
// The subscription is opened before the snapshot is read, so a change that
// lands in between is either in the snapshot or delivered as an event.
func (s *PaymentService) Subscribe(ctx context.Context, buyerID, sessionID string) (*models.PaymentSession, <-chan models.SessionEvent, func(), error) {
	events, cancel, err := s.store.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to subscribe to session: %w", err)
	}
	session, err := s.GetSession(ctx, buyerID, sessionID)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return session, events, cancel, nil
}

// ExpireSessions abandons sessions that outlived the payment timeout and
// cancels their orders. It returns how many sessions it closed.
func (s *PaymentService) ExpireSessions(ctx context.Context, limit int) (int, error) {
	expired, err := s.sessions.ListExpired(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range expired {
		log := logging.Ctx(ctx).With().Str("session_id", expired[i].ID).Logger()

		session, err := s.sessions.Get(ctx, expired[i].ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load expired session")
			continue
		}

		if session.State == models.PaymentSessionAwaitingRedirect {
			if _, err := s.gateway.CancelPaymentLink(ctx, session.PaymentID(), models.CancelReasonPaymentExpired); err != nil {
				log.Warn().Err(err).Msg("Gateway cancel failed for expired session")
			}
		}

		ok, err := s.resolve(ctx, session, models.PaymentSessionAbandoned, repository.SessionOutcome{
			PaymentStatus: models.PaymentStatusAbandoned,
			CancelReason:  models.CancelReasonPaymentExpired,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to abandon payment session")
			continue
		}
		if ok {
			closed++
			log.Info().Msg("Payment session abandoned")
		}
	}
	return closed, nil
}
