package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope wraps every JSON answer that is not passed through verbatim.
type Envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Problem describes one reason a request failed. Validation yields one per
// offending field; use-case errors yield a single one carrying Status.
type Problem struct {
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (p *Problem) Error() string {
	if p.Err != nil {
		return fmt.Sprintf("%s: %v", p.Message, p.Err)
	}
	return p.Message
}

func (p *Problem) Unwrap() error { return p.Err }

// Wrap attaches the cause; it is logged, never serialised.
func (p *Problem) Wrap(err error) *Problem {
	p.Err = err
	return p
}

func newProblem(status int, code, field, message string) *Problem {
	return &Problem{Code: code, Field: field, Message: message, Status: status}
}

func BadRequest(field, message string) *Problem {
	return newProblem(http.StatusBadRequest, "ERR_BAD_REQUEST", field, message)
}

// Upstream reports a failed market data call as 502.
func Upstream(message string) *Problem {
	return newProblem(http.StatusBadGateway, "ERR_UPSTREAM", "", message)
}

func Unavailable(message string) *Problem {
	return newProblem(http.StatusServiceUnavailable, "ERR_UNAVAILABLE", "", message)
}

func Internal(message string) *Problem {
	return newProblem(http.StatusInternalServerError, "ERR_INTERNAL", "", message)
}

// Respond writes data in an Envelope with the given status.
func Respond(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

// Accepted answers 202 for work handed to the background queue.
func Accepted(c echo.Context, data interface{}) error {
	return Respond(c, http.StatusAccepted, data)
}

// Invalid answers 400 with the validation problems.
func Invalid(c echo.Context, problems []*Problem) error {
	return Respond(c, http.StatusBadRequest, problems)
}

func TooManyRequests(c echo.Context) error {
	return Respond(c, http.StatusTooManyRequests, "rate limit exceeded")
}

// Fail answers with the status of the Problem in err's chain, or a generic
// 500 when there is none.
func Fail(c echo.Context, err error) error {
	var p *Problem
	if !errors.As(err, &p) {
		p = Internal("Something went wrong")
	}
	return Respond(c, p.Status, []*Problem{p})
}
