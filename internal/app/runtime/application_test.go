package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conedex/conedex/internal/config"
	"github.com/conedex/conedex/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		HTTPAddr:        "127.0.0.1:0",
		ShutdownTimeout: 5 * time.Second,
		PlacesRPS:       5,
		PublicBaseURL:   "http://localhost:8080",
		CORSOrigins:     "*",
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), logger.Discard())
	require.NoError(t, err)
	require.Nil(t, a.db)
	require.Nil(t, a.redis)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shops", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_RejectsBadProviderConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.SupabaseURL = "not a url"
	cfg.SupabaseServiceKey = "service-key"

	_, err := New(context.Background(), cfg, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure providers")
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, logger.Discard())
	require.Error(t, err)
}

func TestRunAndShutdown(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestRandomSecret(t *testing.T) {
	first, err := randomSecret()
	require.NoError(t, err)
	second, err := randomSecret()
	require.NoError(t, err)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}
