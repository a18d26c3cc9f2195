package alpaca

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultDataURL = "https://data.alpaca.markets"
	maxPageSize    = 10000
)

// Config holds credentials and request defaults shared by both clients.
type Config struct {
	KeyID           string
	SecretKey       string
	DataURL         string
	Feed            string
	Adjustment      string
	Limit           int
	RateLimitPerMin int
	Timeout         time.Duration
}

// newLimiter paces requests to perMin per minute; zero disables pacing.
func newLimiter(perMin int) *rate.Limiter {
	if perMin <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1)
}

func (c Config) dataURL() string {
	if c.DataURL == "" {
		return DefaultDataURL
	}
	return c.DataURL
}
