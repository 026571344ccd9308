package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-backend/internal/models"
	"storefront-backend/internal/repository"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates an OrderRepository backed by SQLite.
func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_code, buyer_id, shop_id, product_id, product_name, quantity, unit_price,
	total_cost, shipping_fee, payment_method, payment_status, status, delivery_address, rating,
	rating_comment, cancel_reason, payment_session_id, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	var (
		o             models.Order
		rating        sql.NullInt64
		ratingComment sql.NullString
		cancelReason  sql.NullString
		sessionID     sql.NullString
	)
	err := row.Scan(&o.ID, &o.OrderCode, &o.BuyerID, &o.ShopID, &o.ProductID, &o.ProductName,
		&o.Quantity, &o.UnitPrice, &o.TotalCost, &o.ShippingFee, &o.PaymentMethod, &o.PaymentStatus,
		&o.Status, &o.DeliveryAddress, &rating, &ratingComment, &cancelReason, &sessionID,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		v := int(rating.Int64)
		o.Rating = &v
	}
	if ratingComment.Valid {
		o.RatingComment = &ratingComment.String
	}
	if cancelReason.Valid {
		o.CancelReason = &cancelReason.String
	}
	if sessionID.Valid {
		o.PaymentSessionID = &sessionID.String
	}
	return &o, nil
}

func (r *orderRepository) CreateBatch(ctx context.Context, orders []*models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO orders (order_code, buyer_id, shop_id, product_id, product_name, quantity,
			unit_price, total_cost, shipping_fee, payment_method, payment_status, status,
			delivery_address, payment_session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, o := range orders {
		o.CreatedAt, o.UpdatedAt = now, now
		res, err := stmt.ExecContext(ctx, o.OrderCode, o.BuyerID, o.ShopID, o.ProductID, o.ProductName,
			o.Quantity, o.UnitPrice, o.TotalCost, o.ShippingFee, o.PaymentMethod, o.PaymentStatus,
			o.Status, o.DeliveryAddress, o.PaymentSessionID, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert order %s: %w", o.OrderCode, err)
		}
		if id, err := res.LastInsertId(); err == nil {
			o.ID = id
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *orderRepository) GetByCode(ctx context.Context, code string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE order_code = ?", code)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", code, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (r *orderRepository) list(ctx context.Context, where string, args []interface{}, f repository.OrderFilter) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE " + where
	if f.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*f.Status))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID string, f repository.OrderFilter) ([]models.Order, error) {
	return r.list(ctx, "buyer_id = ?", []interface{}{buyerID}, f)
}

func (r *orderRepository) ListByShop(ctx context.Context, shopID string, f repository.OrderFilter) ([]models.Order, error) {
	return r.list(ctx, "shop_id = ?", []interface{}{shopID}, f)
}

func (r *orderRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Order, error) {
	return r.list(ctx, "payment_session_id = ?", []interface{}{sessionID}, repository.OrderFilter{})
}

func (r *orderRepository) LinkSession(ctx context.Context, sessionID string, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	args := []interface{}{sessionID, time.Now().UTC()}
	for _, c := range codes {
		args = append(args, c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")

	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET payment_session_id = ?, updated_at = ? WHERE order_code IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to link orders to session: %w", err)
	}
	if n, _ := res.RowsAffected(); n != int64(len(codes)) {
		return fmt.Errorf("linked %d of %d orders: %w", n, len(codes), repository.ErrNotFound)
	}
	return nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, code string, from, to models.OrderStatus, cancelReason *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, cancel_reason = COALESCE(?, cancel_reason), updated_at = ?
		WHERE order_code = ? AND status = ?`,
		to, cancelReason, time.Now().UTC(), code, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %s no longer %q: %w", code, from, repository.ErrConflict)
	}
	return nil
}

func (r *orderRepository) ConfirmWithStock(ctx context.Context, code string) (*models.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var productID string
	var quantity int
	err = tx.QueryRowContext(ctx, "SELECT product_id, quantity FROM orders WHERE order_code = ?", code).
		Scan(&productID, &quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", code, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?,
			sold = sold + ?,
			status = CASE WHEN stock - ? = 0 THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ? AND stock >= ?`,
		quantity, quantity, quantity, models.ProductStatusOutOfStock, now, productID, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, repository.ErrInsufficientStock)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE order_code = ? AND status = ?`,
		models.OrderStatusPreparing, now, code, models.OrderStatusAwaitingConfirmation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("order %s not awaiting confirmation: %w", code, repository.ErrConflict)
	}

	p, err := scanProduct(tx.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", productID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return p, nil
}

func (r *orderRepository) SubmitRating(ctx context.Context, code string, stars int, comment string) (*repository.RatingResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var result repository.RatingResult
	err = tx.QueryRowContext(ctx, "SELECT product_id, shop_id FROM orders WHERE order_code = ?", code).
		Scan(&result.ProductID, &result.ShopID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", code, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, rating = ?, rating_comment = ?, updated_at = ?
		WHERE order_code = ? AND status IN (?, ?)`,
		models.OrderStatusCompleted, stars, comment, now, code,
		models.OrderStatusReceived, models.OrderStatusAwaitingRating,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rate order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("order %s not awaiting rating: %w", code, repository.ErrConflict)
	}

	// The new order is already Completed, so this is (priorSum + stars) / (priorCount + 1).
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rating), 0) FROM orders
		WHERE product_id = ? AND status = ? AND rating IS NOT NULL`,
		result.ProductID, models.OrderStatusCompleted,
	).Scan(&result.ProductRating)
	if err != nil {
		return nil, fmt.Errorf("failed to compute product rating: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE products SET rating = ?, updated_at = ? WHERE id = ?",
		result.ProductRating, now, result.ProductID); err != nil {
		return nil, fmt.Errorf("failed to update product rating: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rating), 0) FROM products WHERE shop_id = ? AND rating > 0`,
		result.ShopID,
	).Scan(&result.ShopRating)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shop rating: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE shops SET rating = ? WHERE id = ?",
		result.ShopRating, result.ShopID); err != nil {
		return nil, fmt.Errorf("failed to update shop rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &result, nil
}
