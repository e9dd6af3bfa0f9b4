// Package badger implements the namespace index and quota ledger on an
// embedded badger database. Serializable snapshot isolation gives the same
// guarantees the Postgres backend gets from row locks: a transaction whose
// reads were overwritten by a concurrent commit fails with ErrConflict.
package badger

import (
	"context"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the embedded store
type Config struct {
	Dir    string // empty = in-memory
	Logger *slog.Logger
}

// Store owns the badger database shared by the repositories
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the database
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.Dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(&slogAdapter{logger: logger.With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC reclaims value log space; call periodically on disk-backed stores
func (s *Store) RunGC(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

// slogAdapter routes badger's logging through slog.
// Info is demoted to debug, badger is chatty.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
