package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type quoteRequest struct {
	Symbol string `param:"symbol" validate:"required,ticker"`
	As     string `query:"as" default:"series" validate:"oneof=latest series"`
}

func bindPath(t *testing.T, symbol, query string, req interface{}) []*Problem {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodGet, "/q/"+symbol+query, nil)
	c := e.NewContext(r, httptest.NewRecorder())
	c.SetParamNames("symbol")
	c.SetParamValues(symbol)
	return Bind(c, req)
}

func TestBindAppliesDefaults(t *testing.T) {
	req := &quoteRequest{}
	if probs := bindPath(t, "brk.b", "", req); probs != nil {
		t.Fatalf("unexpected problems %+v", probs[0])
	}
	if req.Symbol != "brk.b" || req.As != "series" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestBindReportsEachField(t *testing.T) {
	req := &quoteRequest{}
	probs := bindPath(t, "$$", "?as=table", req)
	if len(probs) != 2 {
		t.Fatalf("expected two problems, got %d", len(probs))
	}
	codes := probs[0].Code + "," + probs[1].Code
	if codes != "ERR_TICKER,ERR_ONEOF" {
		t.Fatalf("unexpected codes %s", codes)
	}
	if probs[1].Message != "As must be one of: latest, series" {
		t.Fatalf("unexpected message %q", probs[1].Message)
	}
	opts, _ := probs[1].Params["options"].([]string)
	if len(opts) != 2 {
		t.Fatalf("unexpected params %v", probs[1].Params)
	}
}

func TestFailUsesProblemStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	cause := errors.New("dial tcp: refused")
	if err := Fail(c, Upstream("market data request failed").Wrap(cause)); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "refused") {
		t.Fatalf("cause leaked into body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = Fail(c, cause)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("plain error should be 500, got %d", rec.Code)
	}
}
