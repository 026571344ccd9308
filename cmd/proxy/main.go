// Command proxy runs the serverless gateway in front of GHTK and PayOS.
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
	"storefront-backend/internal/logging"
	"storefront-backend/internal/middleware"
	"storefront-backend/internal/proxy"
	"storefront-backend/internal/services"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stdout})
	if envErr != nil {
		logging.Info().Msg("No .env file found, using system environment variables")
	}
	if err := cfg.ValidateProxy(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid proxy configuration")
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := proxy.NewServer(proxy.Config{
		GHTKBaseURL:       cfg.GHTKBaseURL,
		GHTKToken:         cfg.GHTKToken,
		PayOSBaseURL:      cfg.PayOSBaseURL,
		PayOSClientID:     cfg.PayOSClientID,
		PayOSAPIKey:       cfg.PayOSAPIKey,
		PayOSChecksumKey:  cfg.PayOSChecksumKey,
		PayOSRedirectBase: cfg.PayOSRedirectBase,
		Timeout:           cfg.ProviderTimeout,
	})
	auth := middleware.NewAuthMiddleware(services.NewAuthService(cfg.JWTSecret, cfg.JWTExpiration))

	server := &http.Server{
		Addr:              ":" + cfg.ProxyPort,
		Handler:           srv.Router(auth),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Info().Str("port", cfg.ProxyPort).Msg("Provider proxy starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("Proxy failed to start")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down proxy...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Proxy forced to shutdown")
	}
}
