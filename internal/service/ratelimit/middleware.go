package ratelimit

import (
	svcmetrics "QuantMini/internal/service/metrics"
	xhttp "QuantMini/pkg/http"

	"github.com/labstack/echo/v4"
)

// Middleware rejects requests with 429 once the caller's bucket is empty.
// Callers are keyed by their real IP.
func Middleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				svcmetrics.RateLimited.Inc()
				return xhttp.TooManyRequests(c)
			}
			return next(c)
		}
	}
}
