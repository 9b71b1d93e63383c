package bling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blingsync/internal/bling/config"
)

type stubTokens struct{}

func (stubTokens) GetValidAccessToken(_ context.Context, _ string) (string, error) {
	return "test-token", nil
}
func (stubTokens) AuthCodeURL(_ string) (string, error)                    { return "", nil }
func (stubTokens) Exchange(_ context.Context, _, _ string) (string, error) { return "", nil }
func (stubTokens) HasTokens(_ context.Context, _ string) bool              { return true }
func (stubTokens) SeedFromConfig(_ context.Context) error                  { return nil }

func testGatewayConfig(baseURL string) config.Config {
	return config.Config{
		APIBase:    baseURL,
		Spacing:    0,
		Cooldown:   time.Millisecond,
		MaxRetries: 3,
	}
}

func TestGatewayRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	gw := NewGateway(testGatewayConfig(srv.URL), stubTokens{}, NewPacer(0), zap.NewNop())

	body, err := gw.Get(context.Background(), "loja1", "/contas/receber", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"data":[]}`, string(body))
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, "Bearer test-token", auth.Load())
}

func TestGatewayRetriesVendorRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"type":"TOO_MANY_REQUESTS"}}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	gw := NewGateway(testGatewayConfig(srv.URL), stubTokens{}, NewPacer(0), zap.NewNop())

	_, err := gw.Get(context.Background(), "loja1", "/x", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestGatewayRateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gw := NewGateway(testGatewayConfig(srv.URL), stubTokens{}, NewPacer(0), zap.NewNop())

	_, err := gw.Get(context.Background(), "loja1", "/x", nil)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, http.StatusTooManyRequests, remoteErr.Status)
	require.EqualValues(t, 3, calls.Load())
}

func TestGatewayNonRetryableError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"type":"VALIDATION_ERROR"}}`))
	}))
	defer srv.Close()

	gw := NewGateway(testGatewayConfig(srv.URL), stubTokens{}, NewPacer(0), zap.NewNop())

	_, err := gw.Patch(context.Background(), "loja1", "/x", map[string]any{})
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, http.StatusUnprocessableEntity, remoteErr.Status)
	require.EqualValues(t, 1, calls.Load())
}

func TestPacerSpacing(t *testing.T) {
	pacer := NewPacer(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, pacer.WaitForTurn(ctx))
	require.NoError(t, pacer.WaitForTurn(ctx))
	require.NoError(t, pacer.WaitForTurn(ctx))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
