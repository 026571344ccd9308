// Package sqlite implements the repository ports on SQLite.
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

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository creates a CatalogRepository backed by SQLite.
func NewCatalogRepository(db *sql.DB) repository.CatalogRepository {
	return &catalogRepository{db: db}
}

const productColumns = `id, shop_id, name, price, weight, stock, sold, likes, rating, status, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.Price, &p.Weight, &p.Stock, &p.Sold,
		&p.Likes, &p.Rating, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

const shopColumns = `id, owner_id, name, province, district, ward, address, phone, ban_state, ban_reason,
	ban_duration_days, ban_start, followers, rating`

func scanShop(row interface{ Scan(...interface{}) error }) (*models.Shop, error) {
	var (
		s         models.Shop
		banReason sql.NullString
		banDays   sql.NullInt64
		banStart  sql.NullTime
	)
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Province, &s.District, &s.Ward, &s.Address, &s.Phone,
		&s.BanState, &banReason, &banDays, &banStart, &s.Followers, &s.Rating)
	if err != nil {
		return nil, err
	}
	if banReason.Valid {
		s.BanReason = &banReason.String
	}
	if banDays.Valid {
		d := int(banDays.Int64)
		s.BanDurationDays = &d
	}
	if banStart.Valid {
		s.BanStart = &banStart.Time
	}
	return &s, nil
}

func (r *catalogRepository) GetShop(ctx context.Context, id string) (*models.Shop, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+shopColumns+" FROM shops WHERE id = ?", id)
	s, err := scanShop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shop %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return s, nil
}

func (r *catalogRepository) GetShopByOwner(ctx context.Context, ownerID string) (*models.Shop, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+shopColumns+" FROM shops WHERE owner_id = ? LIMIT 1", ownerID)
	s, err := scanShop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shop owned by %s: %w", ownerID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop by owner: %w", err)
	}
	return s, nil
}

func (r *catalogRepository) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, phone, province, district, ward, address FROM customers WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Phone, &c.Province, &c.District, &c.Ward, &c.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (r *catalogRepository) SaveProduct(ctx context.Context, p *models.Product) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = models.ProductStatusPendingApproval
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			shop_id = excluded.shop_id, name = excluded.name, price = excluded.price,
			weight = excluded.weight, stock = excluded.stock, sold = excluded.sold,
			likes = excluded.likes, rating = excluded.rating, status = excluded.status,
			updated_at = excluded.updated_at`,
		p.ID, p.ShopID, p.Name, p.Price, p.Weight, p.Stock, p.Sold, p.Likes, p.Rating, p.Status,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (r *catalogRepository) SaveShop(ctx context.Context, s *models.Shop) error {
	if s.BanState == "" {
		s.BanState = models.ShopActive
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shops (`+shopColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id, name = excluded.name, province = excluded.province,
			district = excluded.district, ward = excluded.ward, address = excluded.address,
			phone = excluded.phone,
			ban_state = excluded.ban_state, ban_reason = excluded.ban_reason,
			ban_duration_days = excluded.ban_duration_days, ban_start = excluded.ban_start,
			followers = excluded.followers, rating = excluded.rating`,
		s.ID, s.OwnerID, s.Name, s.Province, s.District, s.Ward, s.Address, s.Phone, s.BanState,
		s.BanReason, s.BanDurationDays, s.BanStart, s.Followers, s.Rating,
	)
	if err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	return nil
}

func (r *catalogRepository) SaveCustomer(ctx context.Context, c *models.Customer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, province, district, ward, address)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, phone = excluded.phone, province = excluded.province,
			district = excluded.district, ward = excluded.ward, address = excluded.address`,
		c.ID, c.Name, c.Phone, c.Province, c.District, c.Ward, c.Address,
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}
