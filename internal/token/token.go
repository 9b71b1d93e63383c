package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"blingsync/internal/model"
	"blingsync/internal/store"
	"blingsync/internal/token/config"
)

// Provider hands out currently-valid bearer tokens per account, refreshing
// stored ones when they are expired or inside the safety margin. It also
// owns the authorization-code leg used to obtain the first token set.
type Provider interface {
	GetValidAccessToken(ctx context.Context, accountID string) (string, error)
	AuthCodeURL(accountID string) (string, error)
	Exchange(ctx context.Context, state string, code string) (accountID string, err error)
	HasTokens(ctx context.Context, accountID string) bool
	SeedFromConfig(ctx context.Context) error
}

var (
	ErrNoCredentials  = errors.New("no credentials")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrUnknownAccount = errors.New("unknown account")
	ErrStateMismatch  = errors.New("oauth state mismatch")
)

// refresh this long before the reported expiry
const expiryMargin = 30 * time.Second

const stateTTL = 10 * time.Minute

type stateEntry struct {
	accountID string
	expires   time.Time
}

type provider struct {
	cfg      config.Config
	accounts map[string]model.Account
	store    store.Store

	mu     sync.Mutex
	states map[string]stateEntry
}

func NewProvider(cfg config.Config, accounts []model.Account, store store.Store) Provider {
	byID := make(map[string]model.Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	return &provider{
		cfg:      cfg,
		accounts: byID,
		store:    store,
		states:   make(map[string]stateEntry),
	}
}

func (p *provider) oauthConfig(acc model.Account) (*oauth2.Config, error) {
	if acc.ClientID == "" || acc.ClientSecret == "" {
		return nil, fmt.Errorf("account %q: %w", acc.ID, ErrNoCredentials)
	}
	return &oauth2.Config{
		ClientID:     acc.ClientID,
		ClientSecret: acc.ClientSecret,
		RedirectURL:  acc.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.cfg.AuthURL,
			TokenURL:  p.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}, nil
}

func (p *provider) GetValidAccessToken(ctx context.Context, accountID string) (string, error) {
	acc, ok := p.accounts[accountID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAccount, accountID)
	}

	tokens, err := p.store.TokensGet(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return "", fmt.Errorf("account %q: %w", accountID, ErrNoCredentials)
		}
		return "", err
	}

	if tokens.AccessToken != "" && tokens.ExpiresAt > 0 && time.Now().UnixMilli() < tokens.ExpiresAt {
		return tokens.AccessToken, nil
	}

	if tokens.RefreshToken == "" {
		return "", fmt.Errorf("account %q: %w", accountID, ErrNoRefreshToken)
	}

	conf, err := p.oauthConfig(acc)
	if err != nil {
		return "", err
	}

	// TokenSource performs the refresh grant with the stored token
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: tokens.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return "", err
	}

	saved := model.TokenSet{
		AccessToken: fresh.AccessToken,
		// the provider may rotate the refresh token; keep the old one if not
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    fresh.Expiry.Add(-expiryMargin).UnixMilli(),
	}
	if fresh.RefreshToken != "" {
		saved.RefreshToken = fresh.RefreshToken
	}
	if err := p.store.TokensSave(ctx, accountID, saved); err != nil {
		return "", err
	}

	return saved.AccessToken, nil
}

func (p *provider) AuthCodeURL(accountID string) (string, error) {
	acc, ok := p.accounts[accountID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAccount, accountID)
	}
	conf, err := p.oauthConfig(acc)
	if err != nil {
		return "", err
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := hex.EncodeToString(buf)

	p.mu.Lock()
	p.pruneStates()
	p.states[state] = stateEntry{accountID: accountID, expires: time.Now().Add(stateTTL)}
	p.mu.Unlock()

	return conf.AuthCodeURL(state), nil
}

func (p *provider) Exchange(ctx context.Context, state string, code string) (string, error) {
	p.mu.Lock()
	p.pruneStates()
	entry, ok := p.states[state]
	delete(p.states, state)
	p.mu.Unlock()
	if !ok {
		return "", ErrStateMismatch
	}

	acc := p.accounts[entry.accountID]
	conf, err := p.oauthConfig(acc)
	if err != nil {
		return "", err
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", err
	}

	saved := model.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.Add(-expiryMargin).UnixMilli(),
	}
	if err := p.store.TokensSave(ctx, entry.accountID, saved); err != nil {
		return "", err
	}
	return entry.accountID, nil
}

func (p *provider) HasTokens(ctx context.Context, accountID string) bool {
	tokens, err := p.store.TokensGet(ctx, accountID)
	if err != nil {
		return false
	}
	return tokens.AccessToken != "" || tokens.RefreshToken != ""
}

// SeedFromConfig writes token seeds carried in the account config for
// accounts that have no stored record yet (headless setups).
func (p *provider) SeedFromConfig(ctx context.Context) error {
	for id, acc := range p.accounts {
		if acc.AccessToken == "" && acc.RefreshToken == "" {
			continue
		}
		if _, err := p.store.TokensGet(ctx, id); !errors.Is(err, store.ErrNoRows) {
			continue
		}
		seed := model.TokenSet{
			AccessToken:  acc.AccessToken,
			RefreshToken: acc.RefreshToken,
			ExpiresAt:    acc.ExpiresAt,
		}
		if err := p.store.TokensSave(ctx, id, seed); err != nil {
			return err
		}
	}
	return nil
}

// callers must hold p.mu
func (p *provider) pruneStates() {
	now := time.Now()
	for s, e := range p.states {
		if now.After(e.expires) {
			delete(p.states, s)
		}
	}
}
