package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/odyssey-erp/logistics/internal/jobs"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesRegisteredCollectors(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("parcel:deleted").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `logistics_jobs_total{job="parcel:deleted",status="success"} 1`) {
		t.Fatalf("expected job counter in body, got: %s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors in body")
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/parcels/{name}")

	req := httptest.NewRequest(http.MethodGet, "/api/parcels/COLIS-00001", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `logistics_http_requests_total{code="418",route="/api/parcels/{name}"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `logistics_http_request_duration_seconds_bucket{route="/api/parcels/{name}"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestParcelSavedCounter(t *testing.T) {
	metrics := NewMetrics()
	metrics.ParcelSaved("Delivered")
	metrics.ParcelSaved("Delivered")
	metrics.ParcelSaved("")

	body := scrape(t, metrics)
	if !strings.Contains(body, `logistics_parcel_saves_total{status="Delivered"} 2`) {
		t.Fatalf("expected parcel counter, got: %s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ParcelSaved("New")
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
