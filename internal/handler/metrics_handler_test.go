package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/halaqa-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	handler := NewMetricsHandler(nil, map[string]Pinger{"postgres": healthy})
	c, w := newHandlerContext(http.MethodGet, "/ready", "", nil)
	handler.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)

	handler = NewMetricsHandler(nil, map[string]Pinger{"postgres": healthy, "redis": down})
	c, w = newHandlerContext(http.MethodGet, "/ready", "", nil)
	handler.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	handler := NewMetricsHandler(nil, nil)
	c, w := newHandlerContext(http.MethodGet, "/metrics", "", nil)
	handler.Prometheus(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	handler = NewMetricsHandler(service.NewMetricsService(), nil)
	c, w = newHandlerContext(http.MethodGet, "/metrics", "", nil)
	handler.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
}
