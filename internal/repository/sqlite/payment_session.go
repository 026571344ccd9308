package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-backend/internal/models"
	"storefront-backend/internal/repository"
)

type paymentSessionRepository struct {
	db *sql.DB
}

// NewPaymentSessionRepository creates a PaymentSessionRepository backed by SQLite.
func NewPaymentSessionRepository(db *sql.DB) repository.PaymentSessionRepository {
	return &paymentSessionRepository{db: db}
}

const sessionColumns = `id, buyer_id, gateway_order_code, amount, state, checkout_url, payment_link_id,
	expires_at, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.PaymentSession, error) {
	var s models.PaymentSession
	err := row.Scan(&s.ID, &s.BuyerID, &s.GatewayOrderCode, &s.Amount, &s.State, &s.CheckoutURL,
		&s.PaymentLinkID, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *paymentSessionRepository) Create(ctx context.Context, s *models.PaymentSession) error {
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.State == "" {
		s.State = models.PaymentSessionCreated
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.BuyerID, s.GatewayOrderCode, s.Amount, s.State, s.CheckoutURL, s.PaymentLinkID,
		s.ExpiresAt.UTC(), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment session: %w", err)
	}
	return nil
}

func (r *paymentSessionRepository) withOrderCodes(ctx context.Context, s *models.PaymentSession) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT order_code FROM orders WHERE payment_session_id = ? ORDER BY id", s.ID)
	if err != nil {
		return fmt.Errorf("failed to query session orders: %w", err)
	}
	defer rows.Close()

	s.OrderCodes = nil
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return fmt.Errorf("failed to scan order code: %w", err)
		}
		s.OrderCodes = append(s.OrderCodes, code)
	}
	return rows.Err()
}

func (r *paymentSessionRepository) get(ctx context.Context, where string, arg interface{}) (*models.PaymentSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM payment_sessions WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment session %v: %w", arg, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}
	if err := r.withOrderCodes(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *paymentSessionRepository) Get(ctx context.Context, id string) (*models.PaymentSession, error) {
	return r.get(ctx, "id = ?", id)
}

func (r *paymentSessionRepository) GetByGatewayCode(ctx context.Context, code int64) (*models.PaymentSession, error) {
	return r.get(ctx, "gateway_order_code = ?", code)
}

func (r *paymentSessionRepository) MarkAwaitingRedirect(ctx context.Context, id, checkoutURL, paymentLinkID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_sessions
		SET state = ?, checkout_url = ?, payment_link_id = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		models.PaymentSessionAwaitingRedirect, checkoutURL, paymentLinkID, time.Now().UTC(),
		id, models.PaymentSessionCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment session %s not in %s: %w", id, models.PaymentSessionCreated, repository.ErrConflict)
	}
	return nil
}

func (r *paymentSessionRepository) Resolve(ctx context.Context, id string, to models.PaymentSessionState, outcome repository.SessionOutcome) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE payment_sessions SET state = ?, updated_at = ?
		WHERE id = ? AND state IN (?, ?)`,
		to, now, id, models.PaymentSessionCreated, models.PaymentSessionAwaitingRedirect,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve payment session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment session %s already resolved: %w", id, repository.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET payment_status = ?, updated_at = ? WHERE payment_session_id = ?",
		outcome.PaymentStatus, now, id); err != nil {
		return fmt.Errorf("failed to update order payment status: %w", err)
	}

	if outcome.CancelReason != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = ?, cancel_reason = ?, updated_at = ?
			WHERE payment_session_id = ? AND status = ?`,
			models.OrderStatusCancelled, outcome.CancelReason, now, id,
			models.OrderStatusAwaitingConfirmation); err != nil {
			return fmt.Errorf("failed to cancel session orders: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *paymentSessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.PaymentSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM payment_sessions
		WHERE state IN (?, ?) AND expires_at < ?
		ORDER BY expires_at LIMIT ?`,
		models.PaymentSessionCreated, models.PaymentSessionAwaitingRedirect, now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
