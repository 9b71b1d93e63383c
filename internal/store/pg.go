package store

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/jackc/pgx/v5/stdlib"

	"blingsync/internal/model"
)

type pgStore struct {
	database *sql.DB
}

func newPgStore(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// Per-account sync state
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS sync_state (" +
			" account VARCHAR (64) PRIMARY KEY," +
			" state JSONB NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	// Per-account OAuth tokens
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS sync_tokens (" +
			" account VARCHAR (64) PRIMARY KEY," +
			" tokens JSONB NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	return &pgStore{database: db}, nil
}

func (store *pgStore) StateGet(ctx context.Context, accountID string) (model.PersistedState, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT state FROM sync_state"+
			" WHERE account = $1",
		accountID)

	var raw []byte
	err := row.Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.NewPersistedState(), nil
		}
		return model.PersistedState{}, err
	}

	state := model.NewPersistedState()
	if err := json.Unmarshal(raw, &state); err != nil {
		// malformed state is recovered, not fatal
		return model.NewPersistedState(), nil
	}
	state.Normalize()
	return state, nil
}

func (store *pgStore) StateSave(ctx context.Context, accountID string, state model.PersistedState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = store.database.ExecContext(ctx,
		"INSERT INTO sync_state (account, state)"+
			" VALUES ($1, $2)"+
			" ON CONFLICT (account) DO UPDATE SET state = $2",
		accountID,
		raw)
	return err
}

func (store *pgStore) TokensGet(ctx context.Context, accountID string) (model.TokenSet, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT tokens FROM sync_tokens"+
			" WHERE account = $1",
		accountID)

	var raw []byte
	err := row.Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.TokenSet{}, ErrNoRows
		}
		return model.TokenSet{}, err
	}

	var tokens model.TokenSet
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return model.TokenSet{}, ErrNoRows
	}
	return tokens, nil
}

func (store *pgStore) TokensSave(ctx context.Context, accountID string, tokens model.TokenSet) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	_, err = store.database.ExecContext(ctx,
		"INSERT INTO sync_tokens (account, tokens)"+
			" VALUES ($1, $2)"+
			" ON CONFLICT (account) DO UPDATE SET tokens = $2",
		accountID,
		raw)
	return err
}
