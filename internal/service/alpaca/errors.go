package alpaca

import "fmt"

// UpstreamError is a non-2xx answer from the market data API.
type UpstreamError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("alpaca: upstream status %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.err }
