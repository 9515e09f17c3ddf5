package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/domain"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/store"
)

// demoBusiness is the shop seeded when -business is not given.
const demoBusiness = "7f1c2f4e-5a8d-4d8e-9a4f-2b1f7f3c9a10"

type seedProduct struct {
	Category string
	Name     string
	Price    string
	Quantity int
	Barcode  string
	SKU      string
}

var demoProducts = []seedProduct{
	{"Minuman", "Teh Botol 450ml", "5000", 48, "8992761111113", "MNM-001"},
	{"Minuman", "Air Mineral 600ml", "3500", 96, "8992761111120", "MNM-002"},
	{"Minuman", "Kopi Susu Kaleng", "8500", 24, "8992761111137", "MNM-003"},
	{"Makanan", "Roti Tawar", "15000", 12, "8992761111144", "MKN-001"},
	{"Makanan", "Mie Instan Goreng", "3100", 120, "8992761111151", "MKN-002"},
	{"Makanan", "Biskuit Kelapa", "9900", 4, "8992761111168", "MKN-003"},
	{"Kebutuhan Rumah", "Sabun Cuci Piring 800ml", "14500", 18, "8992761111175", "RMH-001"},
	{"Kebutuhan Rumah", "Tisu Gulung isi 4", "12000", 3, "8992761111182", "RMH-002"},
}

var demoCustomers = []domain.Customer{
	{Name: "Budi Santoso", Email: "budi@example.com", Phone: "+6281234567001", Address: "Jl. Merdeka 1, Bandung", DiscountEligibility: true},
	{Name: "Siti Aminah", Email: "siti@example.com", Phone: "+6281234567002", Address: "Jl. Sudirman 12, Jakarta"},
	{Name: "Andi Pratama", Email: "andi@example.com", Phone: "+6281234567003", Address: "Jl. Diponegoro 7, Surabaya"},
	{Name: "Dewi Lestari", Email: "dewi@example.com", Phone: "+6281234567004", Address: "Jl. Gajah Mada 3, Semarang", DiscountEligibility: true},
}

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	bizID := flag.String("business", demoBusiness, "business id to seed")
	migrate := flag.Bool("migrate", true, "apply migrations before seeding")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if *migrate {
		if err := store.Migrate(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	db := &store.DB{Pool: pool}

	ctx = business.With(ctx, *bizID)
	if err := seed(ctx, db, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	logger.Info().Str("business_id", *bizID).Msg("seeding completed")
}

func seed(ctx context.Context, db *store.DB, logger zerolog.Logger) error {
	products := store.Products{DB: db}
	_, total, err := products.List(ctx, "", 1, 0)
	if err != nil {
		return err
	}
	if total > 0 {
		logger.Info().Int("products", total).Msg("catalog already seeded, skipping")
		return nil
	}

	return db.InTx(ctx, func(ctx context.Context) error {
		err := store.Businesses{DB: db}.Upsert(ctx, store.Settings{
			Name:              "Toko Demo",
			DefaultTaxRate:    decimal.NewFromInt(11),
			LowStockThreshold: 5,
		})
		if err != nil {
			return err
		}

		categories := map[string]string{}
		for _, sp := range demoProducts {
			catID, ok := categories[sp.Category]
			if !ok {
				catID, err = products.CreateCategory(ctx, sp.Category)
				if err != nil {
					return err
				}
				categories[sp.Category] = catID
			}
			p, err := products.Create(ctx, domain.Product{
				Name:       sp.Name,
				Price:      decimal.RequireFromString(sp.Price),
				Quantity:   sp.Quantity,
				Barcode:    sp.Barcode,
				SKU:        sp.SKU,
				CategoryID: catID,
			})
			if err != nil {
				return err
			}
			logger.Debug().Str("product_id", p.ID).Str("name", p.Name).Msg("product")
		}

		customers := store.Customers{DB: db}
		for _, c := range demoCustomers {
			if _, err := customers.Create(ctx, c); err != nil {
				return err
			}
		}
		logger.Info().
			Int("categories", len(categories)).
			Int("products", len(demoProducts)).
			Int("customers", len(demoCustomers)).
			Msg("demo data inserted")
		return nil
	})
}
