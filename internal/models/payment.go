package models

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PaymentSessionState is the lifecycle of one QR payment attempt.
type PaymentSessionState string

const (
	PaymentSessionCreated          PaymentSessionState = "Created"
	PaymentSessionAwaitingRedirect PaymentSessionState = "AwaitingRedirect"
	PaymentSessionPaid             PaymentSessionState = "Paid"
	PaymentSessionCancelled        PaymentSessionState = "Cancelled"
	PaymentSessionAbandoned        PaymentSessionState = "Abandoned"
)

// IsTerminal reports whether the session accepts no further signals.
func (s PaymentSessionState) IsTerminal() bool {
	switch s {
	case PaymentSessionPaid, PaymentSessionCancelled, PaymentSessionAbandoned:
		return true
	}
	return false
}

// PaymentSession groups the orders paid through one gateway link.
type PaymentSession struct {
	ID               string              `json:"id" db:"id"`
	BuyerID          string              `json:"buyerId" db:"buyer_id"`
	GatewayOrderCode int64               `json:"gatewayOrderCode" db:"gateway_order_code"`
	Amount           int64               `json:"amount" db:"amount"`
	State            PaymentSessionState `json:"state" db:"state"`
	CheckoutURL      string              `json:"checkoutUrl,omitempty" db:"checkout_url"`
	PaymentLinkID    string              `json:"paymentLinkId,omitempty" db:"payment_link_id"`
	ExpiresAt        time.Time           `json:"expiresAt" db:"expires_at"`
	CreatedAt        time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time           `json:"updatedAt" db:"updated_at"`

	OrderCodes []string `json:"orderCodes,omitempty"`
}

// PaymentID returns the identifier the gateway accepts for cancel and lookup.
// The gateway takes either the link id or the numeric order code.
func (s *PaymentSession) PaymentID() string {
	if s.PaymentLinkID != "" {
		return s.PaymentLinkID
	}
	return strconv.FormatInt(s.GatewayOrderCode, 10)
}

// Signal channels through which the gateway outcome reaches the app.
const (
	SignalChannelDeepLink   = "deeplink"
	SignalChannelNavigation = "navigation"
)

// Return paths configured on the payment link.
const (
	PaymentSuccessPath = "payment-success"
	PaymentCancelPath  = "payment-cancel"
)

// PaymentSignal is a redirect observed after the buyer leaves the gateway page.
type PaymentSignal struct {
	Channel string `json:"channel"`
	RawURL  string `json:"url"`
	// BuyerID is set when the signal arrives on an authenticated request;
	// the session must then belong to that buyer.
	BuyerID string `json:"-"`
}

// RedirectInfo is a parsed return URL.
type RedirectInfo struct {
	Path  string
	Query url.Values
}

// ParseRedirect splits a return URL into its last path segment and query.
// For custom-scheme links such as app://payment-success?x=1 the host is the path.
func ParseRedirect(raw string) (RedirectInfo, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return RedirectInfo{}, err
	}

	path := strings.Trim(u.Path, "/")
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		if path == "" {
			path = u.Host
		} else if u.Host != "" {
			path = u.Host + "/" + path
		}
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return RedirectInfo{Path: path, Query: u.Query()}, nil
}

// IsCancel reports a gateway cancellation redirect.
func (r RedirectInfo) IsCancel() bool {
	return r.Path == PaymentCancelPath && r.Query.Get("status") == "CANCELLED"
}

// IsSuccess reports a gateway success redirect.
func (r RedirectInfo) IsSuccess() bool {
	return r.Path == PaymentSuccessPath && r.Query.Get("success") == "true"
}

// OrderCode returns the gateway order code carried in the redirect.
func (r RedirectInfo) OrderCode() string {
	return r.Query.Get("orderCode")
}

// PaymentItem is one line sent to the gateway when creating a link.
type PaymentItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// PaymentLinkRequest is the body accepted by the payment-link proxy route.
type PaymentLinkRequest struct {
	OrderCode   int64         `json:"orderCode" binding:"required"`
	Amount      int64         `json:"amount" binding:"required,gt=0"`
	Description string        `json:"description" binding:"required,max=25"`
	Items       []PaymentItem `json:"items"`
}

// PaymentLinkData is the provider's description of a created link.
type PaymentLinkData struct {
	CheckoutURL   string `json:"checkoutUrl"`
	OrderCode     int64  `json:"orderCode"`
	PaymentLinkID string `json:"paymentLinkId"`
	Amount        int64  `json:"amount,omitempty"`
	Status        string `json:"status,omitempty"`
}

// PaymentLinkResponse wraps provider responses as {code, desc, data}.
type PaymentLinkResponse struct {
	Code string           `json:"code"`
	Desc string           `json:"desc"`
	Data *PaymentLinkData `json:"data"`
}

// PaymentCancelRequest is the body accepted by the cancel proxy route.
type PaymentCancelRequest struct {
	PaymentID          string `json:"paymentId" binding:"required"`
	CancellationReason string `json:"cancellationReason"`
}

// SessionEvent is published whenever a payment session changes state.
type SessionEvent struct {
	SessionID string              `json:"sessionId"`
	State     PaymentSessionState `json:"state"`
	At        time.Time           `json:"at"`
}
