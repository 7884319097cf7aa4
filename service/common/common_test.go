package common

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vellum/hangar"
	"vellum/hangar/mem"

	"github.com/heptiolabs/healthcheck"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenReader struct{}

func (brokenReader) Get(context.Context, hangar.TableID, []byte) (mo.Option[[]byte], error) {
	return mo.None[[]byte](), errors.New("broken")
}

func (brokenReader) GetAt(context.Context, hangar.TableID, []byte, hangar.Position) (mo.Option[[]byte], error) {
	return mo.None[[]byte](), errors.New("broken")
}

func (brokenReader) Scan(context.Context, hangar.ScanRequest) ([]hangar.KV, error) {
	return nil, errors.New("broken")
}

func (brokenReader) ScanAt(context.Context, hangar.ScanRequest, hangar.Position) ([]hangar.KV, error) {
	return nil, errors.New("broken")
}

func status(t *testing.T, h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestHealthCheckServer(t *testing.T) {
	db := mem.NewHangar()
	defer func() { _ = db.Teardown() }()

	srv := NewHealthCheckServer(0, map[string]healthcheck.Check{
		"store": StoreReadinessCheck(db, time.Second),
	})
	assert.Equal(t, http.StatusOK, status(t, srv.Handler, "/live"))
	assert.Equal(t, http.StatusOK, status(t, srv.Handler, "/ready"))

	srv = NewHealthCheckServer(0, map[string]healthcheck.Check{
		"store": StoreReadinessCheck(brokenReader{}, time.Second),
	})
	assert.Equal(t, http.StatusOK, status(t, srv.Handler, "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, srv.Handler, "/ready"))
}

func TestSideServers(t *testing.T) {
	assert.Equal(t, http.StatusOK, status(t, NewPromMetricsServer(0).Handler, "/metrics"))
	assert.Equal(t, http.StatusOK, status(t, NewPprofServer(0).Handler, "/debug/pprof/"))
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
