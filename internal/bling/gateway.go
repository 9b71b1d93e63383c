package bling

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"blingsync/internal/bling/config"
	"blingsync/internal/metrics"
	"blingsync/internal/token"
)

// RemoteError is a non-2xx answer from the ERP after retries are exhausted.
type RemoteError struct {
	Status int
	Body   []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bling request status: %d", e.Status)
}

// Pacer serializes outbound calls across all accounts: every call waits
// until at least the configured spacing has elapsed since the previous one.
// WaitForTurn is its only operation.
type Pacer struct {
	limiter *rate.Limiter
}

func NewPacer(spacing time.Duration) *Pacer {
	if spacing <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(spacing), 1)}
}

func (p *Pacer) WaitForTurn(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Gateway issues authenticated calls to the ERP, throttled through the
// shared pacer, retrying rate-limited answers.
type Gateway interface {
	Get(ctx context.Context, accountID string, path string, params url.Values) ([]byte, error)
	Patch(ctx context.Context, accountID string, path string, body any) ([]byte, error)
}

type gateway struct {
	cfg    config.Config
	tokens token.Provider
	pacer  *Pacer
	client *resty.Client
	zaplog *zap.Logger
}

func NewGateway(cfg config.Config, tokens token.Provider, pacer *Pacer, zaplog *zap.Logger) Gateway {
	return &gateway{
		cfg:    cfg,
		tokens: tokens,
		pacer:  pacer,
		client: resty.New(),
		zaplog: zaplog,
	}
}

func (g *gateway) Get(ctx context.Context, accountID string, path string, params url.Values) ([]byte, error) {
	return g.call(ctx, accountID, http.MethodGet, path, params, nil)
}

func (g *gateway) Patch(ctx context.Context, accountID string, path string, body any) ([]byte, error) {
	return g.call(ctx, accountID, http.MethodPatch, path, nil, body)
}

func (g *gateway) call(ctx context.Context, accountID string, method string, path string, params url.Values, body any) ([]byte, error) {
	attempts := g.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := g.pacer.WaitForTurn(ctx); err != nil {
			return nil, err
		}

		// a token that expired mid-retry gets renewed here
		bearer, err := g.tokens.GetValidAccessToken(ctx, accountID)
		if err != nil {
			return nil, err
		}

		req := g.client.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json").
			SetAuthToken(bearer)
		if params != nil {
			req.SetQueryParamsFromValues(params)
		}
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}

		resp, err := req.Execute(method, g.cfg.APIBase+path)
		if err != nil {
			return nil, err
		}

		metrics.RemoteCalls.WithLabelValues(method, strconv.Itoa(resp.StatusCode())).Inc()

		if resp.IsSuccess() {
			return resp.Body(), nil
		}

		remoteErr := &RemoteError{
			Status: resp.StatusCode(),
			Body:   append([]byte(nil), resp.Body()...),
		}

		if !rateLimited(resp.StatusCode(), resp.Body()) {
			g.zaplog.Error("bling request failed",
				zap.String("account", accountID),
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", resp.StatusCode()),
				zap.ByteString("body", resp.Body()),
			)
			return nil, remoteErr
		}

		lastErr = remoteErr
		if attempt == attempts {
			break
		}

		metrics.RemoteCallRetries.Inc()
		g.zaplog.Warn("bling rate limited, cooling down",
			zap.String("account", accountID),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("cooldown", g.cfg.Cooldown),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.cfg.Cooldown):
		}
	}

	return nil, lastErr
}

// vendor error type Bling reports alongside plain HTTP 429
var tooManyRequests = []byte("TOO_MANY_REQUESTS")

func rateLimited(status int, body []byte) bool {
	return status == http.StatusTooManyRequests || bytes.Contains(body, tooManyRequests)
}
