package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"blingsync/internal/model"
)

type fileStore struct {
	dir string
}

func newFileStore(dir string) (Store, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir}, nil
}

func (fs *fileStore) statePath(accountID string) string {
	return filepath.Join(fs.dir, fmt.Sprintf("state_%s.json", accountID))
}

func (fs *fileStore) tokensPath(accountID string) string {
	return filepath.Join(fs.dir, fmt.Sprintf("tokens_%s.json", accountID))
}

// StateGet never fails on a missing or malformed file: the sync must be
// able to start over from defaults.
func (fs *fileStore) StateGet(_ context.Context, accountID string) (model.PersistedState, error) {
	state := model.NewPersistedState()

	raw, err := os.ReadFile(fs.statePath(accountID))
	if err != nil {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.NewPersistedState(), nil
	}
	state.Normalize()
	return state, nil
}

func (fs *fileStore) StateSave(_ context.Context, accountID string, state model.PersistedState) error {
	return writeJSONFile(fs.statePath(accountID), state)
}

func (fs *fileStore) TokensGet(_ context.Context, accountID string) (model.TokenSet, error) {
	raw, err := os.ReadFile(fs.tokensPath(accountID))
	if err != nil {
		return model.TokenSet{}, ErrNoRows
	}
	var tokens model.TokenSet
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return model.TokenSet{}, ErrNoRows
	}
	return tokens, nil
}

func (fs *fileStore) TokensSave(_ context.Context, accountID string, tokens model.TokenSet) error {
	return writeJSONFile(fs.tokensPath(accountID), tokens)
}

// writeJSONFile goes through a temp file and rename so a crash mid-write
// leaves the previous record intact.
func writeJSONFile(path string, value any) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
