package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.PurchasesTotal.WithLabelValues("created").Inc()
	m.PurchasesTotal.WithLabelValues("duplicate").Inc()
	m.DownloadsTotal.WithLabelValues("ok").Add(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PurchasesTotal.WithLabelValues("created")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("ok")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"ok"}`))
	}))

	req := httptest.NewRequest("POST", "/api/plugins/abc/purchase", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("POST", "/api/plugins/abc/purchase", "201")))
}

func TestCollectDBStats(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.CollectDBStats(10, 4)
	assert.Equal(t, float64(6), testutil.ToFloat64(m.DBConnectionsActive))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.DBConnectionsIdle))
}
