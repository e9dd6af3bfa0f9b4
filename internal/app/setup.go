// Package app wires configured backends into the namespace services. The
// server and the maintenance commands share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"drivestore/internal/config"
	"drivestore/internal/content/local"
	"drivestore/internal/content/memory"
	"drivestore/internal/content/s3"
	"drivestore/internal/domain/repositories"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	nsSvc "drivestore/internal/domain/services/namespace"
	"drivestore/internal/repository/badger"
	"drivestore/internal/repository/postgres"
	pgNamespace "drivestore/internal/repository/postgres/namespace"
	nsService "drivestore/internal/service/namespace"

	"github.com/jackc/pgx/v5/pgxpool"
)

// badgerGCInterval spaces value log garbage collection runs
const badgerGCInterval = 10 * time.Minute

// Backends holds the index, ledger and content store selected by config
type Backends struct {
	Entries   nsRepo.EntryRepository
	Ledger    nsRepo.QuotaLedger
	Content   nsRepo.ContentStore
	TxManager repositories.TransactionManager

	// Set for the postgres index only
	Pool   *pgxpool.Pool
	Tables *postgres.TableNames

	closers []func()
}

// Close releases backend resources in reverse order of acquisition
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// SetupLimits returns the per-owner quota policy: the plan file when one
// is configured, otherwise the default limit for everyone
func SetupLimits(cfg *config.Config, logger *slog.Logger) (nsRepo.LimitPolicy, error) {
	if cfg.QuotaPlansFile == "" {
		logger.Info("quota policy", "default_bytes", cfg.DefaultQuotaBytes)
		return nsRepo.FixedLimit(cfg.DefaultQuotaBytes), nil
	}

	plans, err := config.LoadQuotaPlans(cfg.QuotaPlansFile, cfg.DefaultQuotaBytes)
	if err != nil {
		return nil, err
	}
	logger.Info("quota plans loaded",
		"file", cfg.QuotaPlansFile,
		"plans", len(plans.Plans),
		"owners", len(plans.Owners),
	)
	return plans, nil
}

// SetupBackends opens the configured index and content store. ctx bounds
// background maintenance such as badger GC.
func SetupBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	limits, err := SetupLimits(cfg, logger)
	if err != nil {
		return nil, err
	}

	b := &Backends{}
	if err := b.setupIndex(ctx, cfg, limits, logger); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.setupContent(ctx, cfg, logger); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backends) setupIndex(ctx context.Context, cfg *config.Config, limits nsRepo.LimitPolicy, logger *slog.Logger) error {
	switch cfg.IndexBackend {
	case config.IndexPostgres:
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		b.closers = append(b.closers, pool.Close)

		tables := postgres.NewTableNames(cfg.TablePrefix)
		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: tables,
			Logger: logger,
		}
		b.Pool = pool
		b.Tables = tables
		b.Entries = pgNamespace.NewEntryRepository(repoConfig)
		b.Ledger = pgNamespace.NewQuotaLedger(repoConfig, limits)
		b.TxManager = postgres.NewTransactionManager(pool, logger)

		logger.Info("database connected", "table_prefix", cfg.TablePrefix)

	case config.IndexBadger:
		store, err := badger.Open(badger.Config{Dir: cfg.BadgerDir, Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to open badger: %w", err)
		}
		b.closers = append(b.closers, func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close badger", "error", err)
			}
		})

		b.Entries = badger.NewEntryRepository(store)
		b.Ledger = badger.NewQuotaLedger(store, limits)
		b.TxManager = badger.NewTransactionManager(store)

		if cfg.BadgerDir != "" {
			go runBadgerGC(ctx, store)
		}
		logger.Info("badger index opened", "dir", cfg.BadgerDir, "in_memory", cfg.BadgerDir == "")

	default:
		return fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
	return nil
}

func runBadgerGC(ctx context.Context, store *badger.Store) {
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.RunGC(ctx)
		}
	}
}

func (b *Backends) setupContent(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.ContentBackend {
	case config.ContentS3:
		store, err := s3.New(ctx, s3.Config{
			Endpoint:   cfg.S3Endpoint,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Region:     cfg.S3Region,
			PresignTTL: cfg.PresignTTL,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create s3 content store: %w", err)
		}
		b.Content = store
	case config.ContentLocal:
		store, err := local.New(cfg.LocalContentDir, cfg.PresignTTL, logger)
		if err != nil {
			return fmt.Errorf("failed to create local content store: %w", err)
		}
		b.Content = store
	case config.ContentMemory:
		logger.Warn("content is kept in memory and lost on restart")
		b.Content = memory.New(cfg.PresignTTL)
	default:
		return errors.New("unknown content backend " + cfg.ContentBackend)
	}

	logger.Info("content store ready", "backend", b.Content.Type())
	return nil
}

// Services are the namespace services built on one set of backends
type Services struct {
	Tree    nsSvc.TreeService
	Checker nsSvc.ConsistencyChecker
}

// SetupServices builds the tree service and consistency checker
func SetupServices(b *Backends, cfg *config.Config, logger *slog.Logger) *Services {
	return &Services{
		Tree: nsService.NewTreeService(
			b.Entries,
			b.Ledger,
			b.Content,
			b.TxManager,
			nsService.OptionsFromConfig(cfg),
			logger,
		),
		Checker: nsService.NewConsistencyChecker(b.Entries, b.Ledger, b.TxManager, logger),
	}
}
