package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-galeri/internal/catalog"
	"github.com/noah-isme/backend-galeri/internal/pricing"
)

// profileInvalidator evicts cached price profiles; catalog.CachedSource satisfies it.
type profileInvalidator interface {
	Invalidate(ctx context.Context, galleryID string) error
}

type galleryFixture struct {
	ID       string
	Base     pricing.Money
	Status   string
	Archived bool
	Tiers    []pricing.Tier
}

var galleries = []galleryFixture{
	{
		ID:     "wedding-2024",
		Base:   1000,
		Status: "published",
		Tiers: []pricing.Tier{
			{Quantity: 3, Price: 2500},
			{Quantity: 5, Price: 4000},
		},
	},
	{
		ID:     "graduation-day",
		Base:   1500,
		Status: "published",
		Tiers: []pricing.Tier{
			{Quantity: 2, Price: 2700},
			{Quantity: 10, Price: 12000},
		},
	},
	{ID: "portrait-session", Base: 700, Status: "published"},
	{ID: "unreleased-shoot", Base: 900, Status: "draft"},
	{ID: "old-festival", Base: 500, Status: "published", Archived: true},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seeded := seedGalleries(db)

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		evictProfiles(ctx, catalog.CachedSource{Cache: catalog.NewCache(client, 0)}, seeded)
	}

	log.Println("Seeding completed successfully!")
}

func seedGalleries(db *sql.DB) []string {
	fmt.Println("Seeding Gallery Pricing...")
	var seeded []string
	for _, g := range galleries {
		// reject configs the pricing engine would refuse at quote time
		if _, err := pricing.ComputeBundlePrice(g.Base, g.Tiers, 1); err != nil {
			log.Printf("Skipping gallery %s: %v", g.ID, err)
			continue
		}
		if err := upsertGallery(db, g); err != nil {
			log.Printf("Failed to seed gallery %s: %v", g.ID, err)
			continue
		}
		seeded = append(seeded, g.ID)
	}
	return seeded
}

// evictProfiles drops cached profiles of re-seeded galleries so the API stops
// serving the old prices. It returns how many evictions failed.
func evictProfiles(ctx context.Context, inv profileInvalidator, galleryIDs []string) int {
	failed := 0
	for _, id := range galleryIDs {
		if err := inv.Invalidate(ctx, id); err != nil {
			log.Printf("Failed to evict cached profile %s: %v", id, err)
			failed++
		}
	}
	return failed
}

func upsertGallery(db *sql.DB, g galleryFixture) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO gallery_price_profiles (gallery_id, base_price, status, archived_at)
		VALUES ($1, $2, $3, CASE WHEN $4 THEN now() ELSE NULL END)
		ON CONFLICT (gallery_id) DO UPDATE
		SET base_price = EXCLUDED.base_price,
		    status = EXCLUDED.status,
		    archived_at = EXCLUDED.archived_at,
		    updated_at = now();
	`, g.ID, int64(g.Base), g.Status, g.Archived)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM gallery_pricing_tiers WHERE gallery_id = $1`, g.ID); err != nil {
		return fmt.Errorf("clear tiers: %w", err)
	}
	for _, t := range g.Tiers {
		_, err := tx.Exec(`
			INSERT INTO gallery_pricing_tiers (gallery_id, quantity, price)
			VALUES ($1, $2, $3);
		`, g.ID, t.Quantity, int64(t.Price))
		if err != nil {
			return fmt.Errorf("insert tier %d: %w", t.Quantity, err)
		}
	}
	return tx.Commit()
}
