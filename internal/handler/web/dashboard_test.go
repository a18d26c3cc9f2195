package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func serve(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDashboardServesIndexAndScript(t *testing.T) {
	e := echo.New()
	NewDashboard().RegisterRoutes(e)

	rec := serve(e, "/")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML) {
		t.Fatalf("index: %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Body.String(), `src="/static/dashboard.js"`) {
		t.Fatalf("index does not load the script")
	}

	rec = serve(e, "/static/dashboard.js")
	if rec.Code != http.StatusOK {
		t.Fatalf("script: %d", rec.Code)
	}
	for _, want := range []string{"/api/factors/", "/api/prices/", "as: 'series'"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("script missing %q", want)
		}
	}
}

func TestDashboardUnknownAsset(t *testing.T) {
	e := echo.New()
	NewDashboard().RegisterRoutes(e)
	if rec := serve(e, "/static/missing.js"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
