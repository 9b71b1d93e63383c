package store

import (
	"context"
	"errors"

	"blingsync/internal/model"
	"blingsync/internal/store/config"
)

// Store keeps one state record and one token record per account. The sync
// run-lock is the only concurrency guard; the store itself does not
// serialize writers.
type Store interface {
	StateGet(ctx context.Context, accountID string) (model.PersistedState, error)
	StateSave(ctx context.Context, accountID string, state model.PersistedState) error
	TokensGet(ctx context.Context, accountID string) (model.TokenSet, error)
	TokensSave(ctx context.Context, accountID string, tokens model.TokenSet) error
}

var ErrNoRows = errors.New("no rows")

// NewStore picks the postgres backend when a DSN is configured, otherwise
// per-account JSON files.
func NewStore(cfg config.Config) (Store, error) {
	if cfg.DBDsn != "" {
		return newPgStore(cfg.DBDsn)
	}
	return newFileStore(cfg.DataDir)
}
