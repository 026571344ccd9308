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

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a CartRepository backed by SQLite.
func NewCartRepository(db *sql.DB) repository.CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) Get(ctx context.Context, buyerID, productID string) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.QueryRowContext(ctx, `
		SELECT id, buyer_id, product_id, quantity, added_at, updated_at
		FROM carts WHERE buyer_id = ? AND product_id = ?`, buyerID, productID,
	).Scan(&item.ID, &item.BuyerID, &item.ProductID, &item.Quantity, &item.AddedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart item %s: %w", productID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

func (r *cartRepository) Upsert(ctx context.Context, buyerID, productID string, quantity int) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (buyer_id, product_id, quantity, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(buyer_id, product_id) DO UPDATE SET
			quantity = excluded.quantity, updated_at = excluded.updated_at`,
		buyerID, productID, quantity, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save cart item: %w", err)
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, buyerID, productID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM carts WHERE buyer_id = ? AND product_id = ?", buyerID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cart item %s: %w", productID, repository.ErrNotFound)
	}
	return nil
}

func (r *cartRepository) DeleteProducts(ctx context.Context, buyerID string, productIDs []string) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}

	args := make([]interface{}, 0, len(productIDs)+1)
	args = append(args, buyerID)
	for _, id := range productIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(productIDs)), ",")

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM carts WHERE buyer_id = ? AND product_id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart items: %w", err)
	}
	return res.RowsAffected()
}

func (r *cartRepository) List(ctx context.Context, buyerID string) ([]models.CartItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.buyer_id, c.product_id, c.quantity, c.added_at, c.updated_at,
			p.id, p.shop_id, p.name, p.price, p.weight, p.stock, p.sold, p.likes, p.rating,
			p.status, p.created_at, p.updated_at
		FROM carts c
		JOIN products p ON p.id = c.product_id
		WHERE c.buyer_id = ?
		ORDER BY c.added_at, c.id`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var (
			item models.CartItem
			p    models.Product
		)
		if err := rows.Scan(&item.ID, &item.BuyerID, &item.ProductID, &item.Quantity, &item.AddedAt, &item.UpdatedAt,
			&p.ID, &p.ShopID, &p.Name, &p.Price, &p.Weight, &p.Stock, &p.Sold, &p.Likes, &p.Rating,
			&p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		item.Product = &p
		items = append(items, item)
	}
	return items, rows.Err()
}
