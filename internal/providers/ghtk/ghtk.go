// Package ghtk calls the GHTK carrier through the serverless proxy.
package ghtk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront-backend/internal/models"
	"storefront-backend/internal/providers"
)

// ErrRejected is returned when the carrier answers success=false.
var ErrRejected = errors.New("carrier rejected request")

// Client quotes fees and creates shipments.
type Client struct {
	c *providers.Client
}

// NewClient creates a GHTK proxy client.
func NewClient(cfg providers.Config) *Client {
	if cfg.Name == "" {
		cfg.Name = "ghtk"
	}
	return &Client{c: providers.NewClient(cfg)}
}

// Fee returns the shipping fee for one parcel.
func (g *Client) Fee(ctx context.Context, req models.FeeRequest) (int64, error) {
	var resp models.FeeResponse
	path := "/GHTKfee?" + req.Values().Encode()
	if err := g.c.Do(ctx, "fee", http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("fee lookup: %s: %w", resp.Message, ErrRejected)
	}
	return resp.Fee.Fee, nil
}

// CreateShipment registers a parcel with the carrier.
func (g *Client) CreateShipment(ctx context.Context, order models.ShipmentOrder) (*models.ShipmentResponse, error) {
	var resp models.ShipmentResponse
	if err := g.c.Do(ctx, "shipment", http.MethodPost, "/GHTK", order, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("create shipment: %s: %w", resp.Message, ErrRejected)
	}
	return &resp, nil
}
