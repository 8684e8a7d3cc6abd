package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/claims/123", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/claims/:id")

	err := m.Middleware()(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/v1/claims/:id", http.MethodGet, "404"))
	if got != 1 {
		t.Errorf("expected 1 request counted, got %v", got)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.SideEffectFailures.WithLabelValues("SYSTEM").Inc()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := m.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `claimdesk_side_effect_failures_total{grade="SYSTEM"} 1`) {
		t.Errorf("expected side effect counter in output")
	}
}
