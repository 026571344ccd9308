package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-backend/internal/middleware"
	"storefront-backend/internal/models"
	"storefront-backend/internal/services"
)

// RouterConfig carries the middleware settings for the API router.
type RouterConfig struct {
	Security       *middleware.SecurityConfig
	AllowedOrigins []string
}

// SetupRouter mounts every API route
func SetupRouter(h *Handlers, auth *middleware.AuthMiddleware, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.CORSMiddleware(cfg.AllowedOrigins),
	)

	router.GET("/health", health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateway return URLs; the browser lands here without a token.
	router.GET("/"+models.PaymentSuccessPath, h.PaymentReturn)
	router.GET("/"+models.PaymentCancelPath, h.PaymentReturn)

	apiGroup := router.Group("/api/v1")
	apiGroup.Use(middleware.SecurityMiddleware(cfg.Security))
	{
		apiGroup.GET("/health", health)

		protected := apiGroup.Group("", auth.AuthRequired())
		{
			buyer := protected.Group("", auth.RequireRoles(services.RoleCustomer, services.RoleAdmin))
			{
				cart := buyer.Group("/cart")
				cart.GET("", h.GetCart)
				cart.POST("", h.AddToCart)
				cart.PUT("/:productId", h.UpdateCartItem)
				cart.DELETE("/:productId", h.RemoveFromCart)

				buyer.POST("/shipping/quote", h.QuoteShipping)
				buyer.POST("/checkout", h.Checkout)

				orders := buyer.Group("/orders")
				orders.GET("", h.GetOrders)
				orders.GET("/:code", h.GetOrder)
				orders.POST("/:code/cancel", h.CancelOrder)
				orders.POST("/:code/received", h.ConfirmReceived)
				orders.POST("/:code/rating", h.RateOrder)

				payments := buyer.Group("/payments")
				payments.POST("/signal", h.PaymentSignal)
				payments.GET("/:id", h.GetPaymentSession)
				payments.GET("/:id/stream", h.StreamPaymentSession)
			}

			shop := protected.Group("/shop", auth.RequireRoles(services.RoleShop, services.RoleAdmin))
			{
				shop.GET("/orders", h.GetShopOrders)
				shop.POST("/orders/:code/confirm", h.ConfirmShopOrder)
				shop.POST("/orders/:code/in-transit", h.MarkInTransit)
				shop.POST("/orders/:code/awaiting-rating", h.MarkAwaitingRating)
			}
		}
	}

	return router
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}
