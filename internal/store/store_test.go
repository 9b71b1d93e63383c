package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"blingsync/internal/model"
	"blingsync/internal/store/config"
)

func TestFileStoreState(t *testing.T) {
	const account = "loja1"

	cfg := config.Config{DataDir: t.TempDir()}
	ctx := context.Background()

	store, err := NewStore(cfg)
	require.NoError(t, err)

	// missing file reads as empty defaults
	state, err := store.StateGet(ctx, account)
	require.NoError(t, err)
	require.Empty(t, state.Processed)
	require.Empty(t, state.Pending)

	state.Processed["4711"] = 1700000000000
	state.Pending["9001"] = model.PendingOrder{StepIndex: 1, ReceivableID: "4711", OrderNumber: "123", TS: 1700000000000}
	state.LastSyncAt = "2024-03-10T12:00:00Z"
	err = store.StateSave(ctx, account, state)
	require.NoError(t, err)

	loaded, err := store.StateGet(ctx, account)
	require.NoError(t, err)
	require.Equal(t, state, loaded)
}

func TestFileStoreStateCorruption(t *testing.T) {
	const account = "loja1"

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "state_loja1.json"), []byte("{not json"), 0o644)
	require.NoError(t, err)

	store, err := NewStore(config.Config{DataDir: dir})
	require.NoError(t, err)

	state, err := store.StateGet(context.Background(), account)
	require.NoError(t, err)
	require.Empty(t, state.Processed)
	require.Empty(t, state.Pending)
}

func TestFileStoreTokens(t *testing.T) {
	const account = "loja1"

	cfg := config.Config{DataDir: t.TempDir()}
	ctx := context.Background()

	store, err := NewStore(cfg)
	require.NoError(t, err)

	_, err = store.TokensGet(ctx, account)
	require.ErrorIs(t, err, ErrNoRows)

	tokens := model.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 1700000000000}
	err = store.TokensSave(ctx, account, tokens)
	require.NoError(t, err)

	loaded, err := store.TokensGet(ctx, account)
	require.NoError(t, err)
	require.Equal(t, tokens, loaded)
}
