package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"copytrade/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsLabelsByRoutePattern(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Metrics)
	router.Get("/admin/stocks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/admin/stocks/{id}", "418")
	before := counterValue(t, counter)

	for _, path := range []string{"/admin/stocks/1", "/admin/stocks/2"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := counterValue(t, counter) - before; got != 2 {
		t.Fatalf("expected 2 requests on the route series, got %v", got)
	}
}
