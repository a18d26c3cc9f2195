package api

import (
	"errors"
	"fmt"
	"net/http"

	models "QuantMini/internal/domain/models"
	"QuantMini/internal/usecase"
	xhttp "QuantMini/pkg/http"
	xlogger "QuantMini/pkg/logger"
	"QuantMini/pkg/queue"

	"github.com/labstack/echo/v4"
)

// FactorsEchoHandler serves prices, bars and factor results.
type FactorsEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.FactorsUseCase
	q      queue.Enqueuer
	maxAge int
}

// NewFactorsEchoHandler creates the handler. q may be nil, in which case
// refresh requests answer 503.
func NewFactorsEchoHandler(logger *xlogger.Logger, uc *usecase.FactorsUseCase, q queue.Enqueuer, maxAgeSeconds int) *FactorsEchoHandler {
	return &FactorsEchoHandler{logger: logger, uc: uc, q: q, maxAge: maxAgeSeconds}
}

func (h *FactorsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/prices/:symbol", h.Prices)
	g.GET("/bars/:symbol", h.Bars)
	g.GET("/factors/:symbol", h.Factors)
	g.POST("/factors/:symbol/refresh", h.Refresh)
}

func (h *FactorsEchoHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *FactorsEchoHandler) Prices(c echo.Context) error {
	req := &models.PricesRequest{}
	if probs := xhttp.Bind(c, req); probs != nil {
		return xhttp.Invalid(c, probs)
	}
	raw, err := h.uc.GetPrices(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "prices", err)
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *FactorsEchoHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if probs := xhttp.Bind(c, req); probs != nil {
		return xhttp.Invalid(c, probs)
	}
	payload, err := h.uc.GetBars(c.Request().Context(), usecase.BarsParams{
		Symbol:    req.Symbol,
		Start:     req.Start,
		End:       req.End,
		Timeframe: req.Timeframe,
	})
	if err != nil {
		return h.fail(c, "bars", err)
	}
	return c.JSON(http.StatusOK, payload)
}

// Factors returns the factor result as-is: an object for latest, an array
// for series, or {"error": reason} with 200 when no data exists.
func (h *FactorsEchoHandler) Factors(c echo.Context) error {
	req := &models.FactorsRequest{}
	if probs := xhttp.Bind(c, req); probs != nil {
		return xhttp.Invalid(c, probs)
	}
	res, err := h.uc.GetFactors(c.Request().Context(), usecase.FactorsParams{
		Symbol:    req.Symbol,
		Start:     req.Start,
		End:       req.End,
		Timeframe: req.Timeframe,
		Mode:      req.As,
	})
	if err != nil {
		return h.fail(c, "factors", err)
	}
	if h.maxAge > 0 {
		c.Response().Header().Set(echo.HeaderCacheControl, fmt.Sprintf("private, max-age=%d", h.maxAge))
	}
	return c.JSON(http.StatusOK, res)
}

func (h *FactorsEchoHandler) Refresh(c echo.Context) error {
	if h.q == nil {
		return xhttp.Fail(c, xhttp.Unavailable("background refresh is disabled"))
	}
	req := &models.FactorsRequest{}
	if probs := xhttp.Bind(c, req); probs != nil {
		return xhttp.Invalid(c, probs)
	}
	rr := usecase.RefreshRequest{
		Symbol:    req.Symbol,
		Start:     req.Start,
		End:       req.End,
		Timeframe: req.Timeframe,
		Mode:      req.As,
	}
	if err := h.uc.EnqueueRefresh(c.Request().Context(), h.q, rr); err != nil {
		return h.fail(c, "refresh", err)
	}
	return xhttp.Accepted(c, map[string]interface{}{"queued": true, "symbol": rr.Symbol})
}

func (h *FactorsEchoHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return xhttp.Fail(c, xhttp.BadRequest("", err.Error()).Wrap(err))
	case errors.Is(err, usecase.ErrUpstream):
		h.logger.Warn(op+" upstream error", xlogger.Error(err))
		return xhttp.Fail(c, xhttp.Upstream("market data request failed").Wrap(err))
	default:
		h.logger.Error(op+" usecase error", xlogger.Error(err))
		return xhttp.Fail(c, xhttp.Internal("factor computation failed").Wrap(err))
	}
}
