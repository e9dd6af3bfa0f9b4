package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"drivestore/internal/app"
	"drivestore/internal/auth"
	"drivestore/internal/config"
	"drivestore/internal/repository/postgres"
	"drivestore/internal/seed"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed entries")
	clearData := flag.Bool("clear-data", false, "Delete the owner's entries (keep schema)")
	ownerID := flag.String("owner", "demo-user", "Owner id to seed")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed dev token (0 disables)")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}

	logger := cfg.NewLogger(os.Stdout)

	switch {
	case *clearData:
		log.Printf("Clearing data for %s (environment: %s, index: %s)", *ownerID, cfg.Environment, cfg.IndexBackend)
	case *schemaOnly:
		log.Printf("Setting up schema only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	default:
		log.Printf("Seeding %s (environment: %s, index: %s)", *ownerID, cfg.Environment, cfg.IndexBackend)
	}

	ctx := context.Background()
	backends, err := app.SetupBackends(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to setup backends: %v", err)
	}
	defer backends.Close()

	// Schema only applies to the postgres index; badger needs none
	if backends.Pool != nil {
		if *dropTables {
			log.Println("Dropping all tables...")
			if err := postgres.DropTables(ctx, backends.Pool, backends.Tables); err != nil {
				log.Fatalf("Failed to drop tables: %v", err)
			}
			log.Println("Tables dropped")
		}

		log.Println("Ensuring database schema is up to date...")
		if err := postgres.Migrate(ctx, backends.Pool, backends.Tables); err != nil {
			log.Fatalf("Failed to run schema: %v", err)
		}
		log.Println("Schema ready")
	}

	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	services := app.SetupServices(backends, cfg, logger)
	seeder := seed.NewTreeSeeder(services.Tree, logger)

	log.Printf("Clearing existing entries for %s...", *ownerID)
	removed, err := seeder.ClearOwner(ctx, *ownerID)
	if err != nil {
		log.Fatalf("Failed to clear data: %v", err)
	}
	log.Printf("Removed %d root entries", removed)

	if *clearData {
		log.Println("Data cleared successfully")
		return
	}

	created, err := seeder.SeedDemoTree(ctx, *ownerID)
	if err != nil {
		log.Fatalf("Failed to seed demo tree: %v", err)
	}
	for p, entry := range created {
		log.Printf("  %s (%s, id %s)", p, entry.Kind, entry.ID)
	}

	usage, err := services.Tree.Usage(ctx, *ownerID)
	if err != nil {
		log.Fatalf("Failed to read usage: %v", err)
	}
	log.Printf("Seeding complete: %d entries, %d bytes used", len(created), usage.Used)

	printDevToken(cfg, *ownerID, *tokenTTL)
}

// printDevToken prints a bearer token for the seeded owner when the server
// verifies tokens with a shared secret. Never in prod.
func printDevToken(cfg *config.Config, ownerID string, ttl time.Duration) {
	if ttl <= 0 || cfg.Environment == "prod" {
		return
	}
	if cfg.JWTSecret == "" {
		log.Println("JWT_SECRET not set; no dev token printed")
		return
	}

	token, err := devToken(cfg, ownerID, ttl, time.Now())
	if err != nil {
		log.Fatalf("Failed to sign dev token: %v", err)
	}
	log.Printf("Dev token for %s (expires in %s):", ownerID, ttl)
	log.Printf("  Authorization: Bearer %s", token)
}

func devToken(cfg *config.Config, ownerID string, ttl time.Duration, now time.Time) (string, error) {
	return auth.SignToken(cfg.JWTSecret, cfg.JWTIssuer, ownerID, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
}
