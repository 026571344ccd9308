// Package payos calls the PayOS gateway through the serverless proxy.
package payos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"storefront-backend/internal/models"
	"storefront-backend/internal/providers"
	"storefront-backend/internal/utils"
)

// SuccessCode is the gateway's code for an accepted request.
const SuccessCode = "00"

// MaxDescriptionLength is the gateway's limit on link descriptions.
const MaxDescriptionLength = 25

// ErrRejected is returned when the gateway answers with a non-success code.
var ErrRejected = errors.New("gateway rejected request")

// Client creates, cancels and inspects payment links.
type Client struct {
	c *providers.Client
}

// NewClient creates a PayOS proxy client.
func NewClient(cfg providers.Config) *Client {
	if cfg.Name == "" {
		cfg.Name = "payos"
	}
	return &Client{c: providers.NewClient(cfg)}
}

func unwrap(resp models.PaymentLinkResponse, op string) (*models.PaymentLinkData, error) {
	if resp.Code != SuccessCode {
		return nil, fmt.Errorf("%s: code %s %s: %w", op, resp.Code, resp.Desc, ErrRejected)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%s: empty data: %w", op, ErrRejected)
	}
	return resp.Data, nil
}

// CreatePaymentLink requests a hosted checkout page.
func (p *Client) CreatePaymentLink(ctx context.Context, req models.PaymentLinkRequest) (*models.PaymentLinkData, error) {
	req.Description = TrimDescription(req.Description)

	var resp models.PaymentLinkResponse
	if err := p.c.Do(ctx, "create_link", http.MethodPost, "/paymentOS", req, &resp); err != nil {
		return nil, err
	}
	data, err := unwrap(resp, "create payment link")
	if err != nil {
		return nil, err
	}
	if data.CheckoutURL == "" {
		return nil, fmt.Errorf("create payment link: missing checkout url: %w", ErrRejected)
	}
	return data, nil
}

// CancelPaymentLink cancels an unpaid link.
func (p *Client) CancelPaymentLink(ctx context.Context, paymentID, reason string) (*models.PaymentLinkData, error) {
	body := models.PaymentCancelRequest{PaymentID: paymentID, CancellationReason: reason}

	var resp models.PaymentLinkResponse
	if err := p.c.Do(ctx, "cancel_link", http.MethodPost, "/cancelOS", body, &resp); err != nil {
		return nil, err
	}
	return unwrap(resp, "cancel payment link")
}

// GetPaymentLink returns the gateway's view of a link.
func (p *Client) GetPaymentLink(ctx context.Context, paymentID string) (*models.PaymentLinkData, error) {
	var resp models.PaymentLinkResponse
	if err := p.c.Do(ctx, "get_link", http.MethodGet, "/getOS/"+url.PathEscape(paymentID), nil, &resp); err != nil {
		return nil, err
	}
	return unwrap(resp, "get payment link")
}

// TrimDescription cuts a description to the gateway's rune limit.
func TrimDescription(s string) string {
	return utils.TruncateRunes(s, MaxDescriptionLength)
}
