// Command init_server prepares a storefront database: it applies migrations,
// checks the schema and optionally loads a catalog seed file.
//
//	SEED_FILE=seed.json go run ./cmd
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"storefront-backend/config"
	"storefront-backend/database"
	"storefront-backend/internal/logging"
	"storefront-backend/internal/models"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/repository/sqlite"
)

var requiredTables = []string{"customers", "shops", "products", "carts", "payment_sessions", "orders"}

// seedFile is the catalog loaded by SEED_FILE.
type seedFile struct {
	Shops     []models.Shop     `json:"shops"`
	Products  []models.Product  `json:"products"`
	Customers []models.Customer `json:"customers"`
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console", Output: os.Stdout})

	logging.Info().Str("database", cfg.DatabaseURL).Msg("Initializing storefront database")

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	migrator := database.NewMigrationManager(db)
	applied, err := migrator.RunMigrations()
	if err != nil {
		logging.Fatal().Err(err).Msg("Migration failed")
	}
	logging.Info().Int("applied", applied).Msg("Migrations finished")

	if err := verifySchema(db); err != nil {
		logging.Fatal().Err(err).Msg("Schema check failed")
	}

	if path := os.Getenv("SEED_FILE"); path != "" {
		if err := seedCatalog(context.Background(), sqlite.NewCatalogRepository(db), path); err != nil {
			logging.Fatal().Err(err).Str("file", path).Msg("Seeding failed")
		}
	}

	displayStatus(db, migrator)
}

func verifySchema(db *sql.DB) error {
	for _, table := range requiredTables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			return fmt.Errorf("table %s missing: %w", table, err)
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, catalog repository.CatalogRepository, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	// Shops first: products reference them.
	for i := range seed.Shops {
		if seed.Shops[i].BanState == "" {
			seed.Shops[i].BanState = models.ShopActive
		}
		if err := catalog.SaveShop(ctx, &seed.Shops[i]); err != nil {
			return err
		}
	}
	for i := range seed.Products {
		if seed.Products[i].Status == "" {
			seed.Products[i].Status = models.ProductStatusInStock
		}
		if err := catalog.SaveProduct(ctx, &seed.Products[i]); err != nil {
			return err
		}
	}
	for i := range seed.Customers {
		if err := catalog.SaveCustomer(ctx, &seed.Customers[i]); err != nil {
			return err
		}
	}

	logging.Info().Int("shops", len(seed.Shops)).Int("products", len(seed.Products)).
		Int("customers", len(seed.Customers)).Msg("Catalog seeded")
	return nil
}

func displayStatus(db *sql.DB, migrator *database.MigrationManager) {
	applied, err := migrator.AppliedMigrations()
	if err != nil {
		logging.Warn().Err(err).Msg("Could not list migrations")
	}

	event := logging.Info().Int("migrations", len(applied))
	for _, table := range requiredTables {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err == nil {
			event = event.Int(table, n)
		}
	}
	event.Msg("Database ready")
}
