package provisioning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmehdipour/vps-billing/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) (*HTTPGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	g := NewHTTPGateway(config.ProviderConfig{
		Name:        "test",
		BaseURL:     srv.URL + "/",
		Token:       "tok",
		TimeoutMs:   2000,
		MaxAttempts: 3,
		Breaker:     config.BreakerConfig{FailThreshold: 2, OpenForMs: 60000},
	}, nil)
	g.backoff = 0
	return g, srv
}

func TestDeleteComputeSendsAuthorizedDelete(t *testing.T) {
	var method, path, auth string
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		method, path, auth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, g.DeleteCompute(context.Background(), "12345"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/v2/droplets/12345", path)
	assert.Equal(t, "Bearer tok", auth)
}

func TestDeleteVolumePath(t *testing.T) {
	var path string
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, g.DeleteVolume(context.Background(), "vol-abc"))
	assert.Equal(t, "/v2/volumes/vol-abc", path)
}

func TestNotFoundIsSuccess(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"id":"not_found"}`, http.StatusNotFound)
	})

	assert.NoError(t, g.DeleteCompute(context.Background(), "gone"))
	assert.Equal(t, "closed", g.br.State())
}

func TestEmptyProviderIDIsNoop(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	require.NoError(t, g.DeleteCompute(context.Background(), ""))
	assert.Zero(t, calls.Load())
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, g.DeleteCompute(context.Background(), "1"))
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	err := g.DeleteCompute(context.Background(), "1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Status)
	assert.EqualValues(t, 1, calls.Load())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := g.DeleteCompute(context.Background(), "1")
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "open", g.br.State())

	err = g.DeleteVolume(context.Background(), "2")
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 2, calls.Load())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	b := NewMicroBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	require.True(t, b.TryAcquire())
	b.OnFailure()
	assert.False(t, b.TryAcquire())

	now = now.Add(2 * time.Minute)
	require.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire(), "only one probe in flight")
	b.OnSuccess()
	assert.Equal(t, "closed", b.State())
	assert.True(t, b.TryAcquire())
}
