package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/catalog"
	"github.com/xenking/caja/internal/storage/postgres"
)

type seedFile struct {
	Warehouses []struct {
		ID   string `json:"id"`
		Code string `json:"codigo"`
		Name string `json:"nombre"`
	} `json:"warehouses"`
	Stores []struct {
		ID          string `json:"id"`
		Code        string `json:"codigo"`
		Name        string `json:"nombre"`
		WarehouseID string `json:"almacen_id"`
	} `json:"tiendas"`
	Materials []struct {
		Code        string          `json:"codigo"`
		Description string          `json:"descripcion"`
		Category    string          `json:"categoria"`
		Unit        string          `json:"unidad"`
		Price       decimal.Decimal `json:"precio"`
	} `json:"materiales"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
		scopes       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to the catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or CAJA_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CAJA_API_KEY_PEPPER env)")
	flag.StringVar(&scopes, "scopes", "caja,inventario", "comma separated scopes of the seeded key")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CAJA_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CAJA_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CAJA_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	key := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.Hash([]byte(apiKeyPepper), apiKey),
		Name:    "default",
		Scopes:  splitScopes(scopes),
		Active:  true,
	}
	if err := run(ctx, databaseURL, catalogFile, key); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func splitScopes(s string) []string {
	out := []string{}
	for _, scope := range strings.Split(s, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			out = append(out, scope)
		}
	}
	return out
}

func run(ctx context.Context, databaseURL, catalogFile string, key auth.APIKeyInfo) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.New(pool)

	if err := seedCatalog(ctx, store, catalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if err := store.SaveAPIKey(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("upserted API key", slog.String("id", key.ID), slog.Any("scopes", key.Scopes))

	return nil
}

func seedCatalog(ctx context.Context, store *postgres.Store, path string) error {
	slog.Info("reading catalog file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	for _, w := range seed.Warehouses {
		if err := store.SaveWarehouse(ctx, catalog.Warehouse{ID: w.ID, Code: w.Code, Name: w.Name, Active: true}); err != nil {
			return errors.Wrapf(err, "upsert warehouse %s", w.ID)
		}
		slog.Info("upserted warehouse", slog.String("id", w.ID), slog.String("code", w.Code))
	}

	for _, s := range seed.Stores {
		if err := store.SaveStore(ctx, catalog.Store{
			ID:          s.ID,
			Code:        s.Code,
			Name:        s.Name,
			WarehouseID: s.WarehouseID,
			Active:      true,
		}); err != nil {
			return errors.Wrapf(err, "upsert store %s", s.ID)
		}
		slog.Info("upserted store", slog.String("id", s.ID), slog.String("warehouse", s.WarehouseID))
	}

	materials := make([]catalog.Material, len(seed.Materials))
	for i, m := range seed.Materials {
		materials[i] = catalog.Material{
			Code:        m.Code,
			Description: m.Description,
			Category:    m.Category,
			Unit:        m.Unit,
			Price:       m.Price,
			Active:      true,
		}
	}
	n, err := store.UpsertMaterials(ctx, materials)
	if err != nil {
		return errors.Wrap(err, "upsert materials")
	}
	slog.Info("upserted materials", slog.Int("count", n))

	return nil
}
