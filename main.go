package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"storefront-backend/config"
	"storefront-backend/database"
	"storefront-backend/internal/api"
	"storefront-backend/internal/logging"
	"storefront-backend/internal/messaging"
	"storefront-backend/internal/messaging/kafka"
	"storefront-backend/internal/middleware"
	"storefront-backend/internal/providers"
	"storefront-backend/internal/providers/ghtk"
	"storefront-backend/internal/providers/payos"
	"storefront-backend/internal/repository/sqlite"
	"storefront-backend/internal/services"
	"storefront-backend/internal/sessionstore"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stdout})
	if envErr != nil {
		logging.Info().Msg("No .env file found, using system environment variables")
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logging.Fatal().Err(err).Msg("Failed to run migrations")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session coordination needs Redis once more than one instance runs.
	store := sessionstore.Open(ctx, cfg.RedisURL, "storefront")
	defer store.Close()

	var publisher messaging.Publisher = messaging.LogPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.KafkaBrokers)
	}
	defer publisher.Close()

	authService := services.NewAuthService(cfg.JWTSecret, cfg.JWTExpiration)
	proxyConfig := func(name string) providers.Config {
		pc := providers.Config{Name: name, BaseURL: cfg.ProxyBaseURL, Timeout: cfg.ProviderTimeout}
		if cfg.ProxyToken != "" {
			pc.Token = cfg.ProxyToken
		} else {
			pc.TokenSource = authService.ServiceTokenSource("storefront-api")
		}
		return pc
	}
	ghtkClient := ghtk.NewClient(proxyConfig("ghtk"))
	payosClient := payos.NewClient(proxyConfig("payos"))

	catalogRepo := sqlite.NewCatalogRepository(db)
	cartRepo := sqlite.NewCartRepository(db)
	orderRepo := sqlite.NewOrderRepository(db)
	sessionRepo := sqlite.NewPaymentSessionRepository(db)

	orderOpts := []services.OrderServiceOption{services.WithPublisher(publisher)}
	if cfg.GHTKCreateShipment {
		orderOpts = append(orderOpts, services.WithShipments(ghtkClient))
	}

	cartService := services.NewCartService(catalogRepo, cartRepo)
	shippingService := services.NewShippingService(catalogRepo, ghtkClient, cfg.ShippingFeeConcurrency)
	orderService := services.NewOrderService(orderRepo, cartRepo, catalogRepo, orderOpts...)
	paymentService := services.NewPaymentService(sessionRepo, orderRepo, payosClient, store, publisher, cfg.PaymentTimeout)
	checkoutService := services.NewCheckoutService(cartService, shippingService, orderService, paymentService)
	wsService := services.NewWebSocketService(cfg.AllowedOrigins)

	scheduler := services.NewSchedulerService(paymentService)
	scheduler.Start(cfg.PaymentSweepInterval)

	handlers := api.NewHandlers(catalogRepo, cartService, shippingService, orderService, paymentService, checkoutService, wsService)
	router := api.SetupRouter(handlers, middleware.NewAuthMiddleware(authService), api.RouterConfig{
		Security: &middleware.SecurityConfig{
			MaxRequestSize:    1 << 20,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   time.Duration(cfg.RateLimitWindow) * time.Second,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logging.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("Storefront API server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down server...")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server forced to shutdown")
	}

	logging.Info().Msg("Server shutdown complete")
}
