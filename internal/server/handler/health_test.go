package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStats struct{ conns, markets int }

func (s stubStats) ConnectionCount() int { return s.conns }
func (s stubStats) MarketCount() int     { return s.markets }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthCheck_OK(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	h := NewHealthHandler(stubStats{conns: 3, markets: 2}, true, map[string]Pinger{"redis": ok, "postgres": nil}, quietLogger())

	code, body := serve(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["read_only"])
	assert.EqualValues(t, 3, body["connections"])
	assert.EqualValues(t, 2, body["markets"])
	assert.Equal(t, map[string]any{"redis": "ok"}, body["dependencies"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("refused") })
	h := NewHealthHandler(stubStats{}, false, map[string]Pinger{"postgres": down}, quietLogger())

	code, body := serve(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"postgres": "unreachable"}, body["dependencies"])
}
