// Package proxy is the serverless gateway that holds the carrier and payment
// credentials. The app talks only to these routes.
package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/middleware"
	"storefront-backend/internal/models"
	"storefront-backend/internal/providers"
)

// Upstream paths.
const (
	ghtkShipmentPath = "/services/shipment/order"
	ghtkFeePath      = "/services/shipment/fee"
	payosRequestPath = "/v2/payment-requests"
)

// Config holds provider credentials.
type Config struct {
	GHTKBaseURL       string
	GHTKToken         string
	PayOSBaseURL      string
	PayOSClientID     string
	PayOSAPIKey       string
	PayOSChecksumKey  string
	PayOSRedirectBase string
	Timeout           time.Duration
	// HTTPClient overrides the upstream client, mainly for tests.
	HTTPClient *http.Client
}

// Server forwards signed requests to GHTK and PayOS
type Server struct {
	ghtk         *providers.Client
	payos        *providers.Client
	checksumKey  string
	redirectBase string
}

// NewServer creates a new proxy server
func NewServer(cfg Config) *Server {
	return &Server{
		ghtk: providers.NewClient(providers.Config{
			Name:       "ghtk-upstream",
			BaseURL:    cfg.GHTKBaseURL,
			Headers:    map[string]string{"Token": cfg.GHTKToken},
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}),
		payos: providers.NewClient(providers.Config{
			Name:    "payos-upstream",
			BaseURL: cfg.PayOSBaseURL,
			Headers: map[string]string{
				"x-client-id": cfg.PayOSClientID,
				"x-api-key":   cfg.PayOSAPIKey,
			},
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}),
		checksumKey:  cfg.PayOSChecksumKey,
		redirectBase: strings.TrimRight(cfg.PayOSRedirectBase, "/"),
	}
}

// Router mounts the proxy routes behind bearer authentication.
func (s *Server) Router(auth *middleware.AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/", auth.AuthRequired())
	api.POST("/GHTK", s.createShipment)
	api.GET("/GHTKfee", s.shippingFee)
	api.POST("/GHTKfee", s.shippingFee)
	api.POST("/paymentOS", s.createPaymentLink)
	api.POST("/cancelOS", s.cancelPaymentLink)
	api.GET("/getOS/:paymentId", s.getPaymentLink)
	return r
}

// relay writes an upstream answer back to the caller. Upstream error
// statuses pass through with their body.
func relay(c *gin.Context, raw []byte, err error) {
	var statusErr *providers.StatusError
	switch {
	case err == nil:
		c.Data(http.StatusOK, "application/json", raw)
	case errors.As(err, &statusErr):
		c.Data(statusErr.StatusCode, "application/json", []byte(statusErr.Body))
	case errors.Is(err, providers.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Provider unavailable"})
	default:
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("route", c.FullPath()).Msg("Upstream call failed")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "Upstream call failed"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

func (s *Server) createShipment(c *gin.Context) {
	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	raw, err := s.ghtk.DoRaw(c.Request.Context(), "shipment", http.MethodPost, ghtkShipmentPath, body)
	relay(c, raw, err)
}

// feeParams are the accepted fee lookup parameters, from the query string,
// a form-encoded body or a JSON body.
type feeParams struct {
	PickProvince  string   `form:"pick_province" json:"pick_province" binding:"required"`
	PickDistrict  string   `form:"pick_district" json:"pick_district" binding:"required"`
	Province      string   `form:"province" json:"province" binding:"required"`
	District      string   `form:"district" json:"district" binding:"required"`
	Address       string   `form:"address" json:"address"`
	Weight        int      `form:"weight" json:"weight" binding:"required,gt=0"`
	Value         int64    `form:"value" json:"value" binding:"gte=0"`
	Transport     string   `form:"transport" json:"transport"`
	DeliverOption string   `form:"deliver_option" json:"deliver_option"`
	Tags          []string `form:"tags[]" json:"tags"`
}

func (s *Server) shippingFee(c *gin.Context) {
	var p feeParams
	var err error
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		err = c.ShouldBind(&p)
	} else {
		err = c.ShouldBindQuery(&p)
	}
	if err != nil {
		badRequest(c, err)
		return
	}

	query := models.FeeRequest{
		PickProvince:  p.PickProvince,
		PickDistrict:  p.PickDistrict,
		Province:      p.Province,
		District:      p.District,
		Address:       p.Address,
		Weight:        p.Weight,
		Value:         p.Value,
		Transport:     p.Transport,
		DeliverOption: p.DeliverOption,
		Tags:          p.Tags,
	}.Values()

	raw, err := s.ghtk.DoRaw(c.Request.Context(), "fee", http.MethodGet, ghtkFeePath+"?"+query.Encode(), nil)
	relay(c, raw, err)
}

type paymentRequest struct {
	OrderCode   int64                `json:"orderCode"`
	Amount      int64                `json:"amount"`
	Description string               `json:"description"`
	Items       []models.PaymentItem `json:"items"`
	ReturnURL   string               `json:"returnUrl"`
	CancelURL   string               `json:"cancelUrl"`
	Signature   string               `json:"signature"`
}

// PaymentRequestSignature signs the fields of a link request.
func PaymentRequestSignature(amount, orderCode int64, description, returnURL, cancelURL, checksumKey string) string {
	return Sign(map[string]string{
		"amount":      strconv.FormatInt(amount, 10),
		"cancelUrl":   cancelURL,
		"description": description,
		"orderCode":   strconv.FormatInt(orderCode, 10),
		"returnUrl":   returnURL,
	}, checksumKey)
}

// CancelSignature signs the fields of a cancel request.
func CancelSignature(paymentID, reason, checksumKey string) string {
	return Sign(map[string]string{
		"cancellationReason": reason,
		"paymentId":          paymentID,
	}, checksumKey)
}

func (s *Server) createPaymentLink(c *gin.Context) {
	var req models.PaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	body := paymentRequest{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: req.Description,
		Items:       req.Items,
		ReturnURL:   s.redirectBase + "/" + models.PaymentSuccessPath,
		CancelURL:   s.redirectBase + "/" + models.PaymentCancelPath,
	}
	if body.Items == nil {
		body.Items = []models.PaymentItem{}
	}
	body.Signature = PaymentRequestSignature(body.Amount, body.OrderCode, body.Description, body.ReturnURL, body.CancelURL, s.checksumKey)

	raw, err := s.payos.DoRaw(c.Request.Context(), "create_link", http.MethodPost, payosRequestPath, body)
	relay(c, raw, err)
}

func (s *Server) cancelPaymentLink(c *gin.Context) {
	var req models.PaymentCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	body := map[string]string{
		"cancellationReason": req.CancellationReason,
		"signature":          CancelSignature(req.PaymentID, req.CancellationReason, s.checksumKey),
	}
	path := payosRequestPath + "/" + url.PathEscape(req.PaymentID) + "/cancel"
	raw, err := s.payos.DoRaw(c.Request.Context(), "cancel_link", http.MethodPost, path, body)
	relay(c, raw, err)
}

func (s *Server) getPaymentLink(c *gin.Context) {
	paymentID := c.Param("paymentId")
	path := payosRequestPath + "/" + url.PathEscape(paymentID)
	raw, err := s.payos.DoRaw(c.Request.Context(), "get_link", http.MethodGet, path, nil)
	relay(c, raw, err)
}
