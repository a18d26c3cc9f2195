package http

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var (
	validate = newValidator()

	tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,14}$`)
)

// ruleMessages renders a failed tag; %[1]s is the field, %[2]s the tag param.
var ruleMessages = map[string]string{
	"required": "%[1]s is required",
	"ticker":   "%[1]s must be a ticker symbol",
	"oneof":    "%[1]s must be one of: %[2]s",
	"gt":       "%[1]s must be greater than %[2]s",
	"gte":      "%[1]s must be greater than or equal to %[2]s",
	"lt":       "%[1]s must be less than %[2]s",
	"lte":      "%[1]s must be less than or equal to %[2]s",
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(strings.ToUpper(fl.Field().String()))
	})
	return v
}

// Bind fills req from path, query and body, applies `default` tags and runs
// `validate` rules. It returns nil when req is usable.
func Bind(c echo.Context, req interface{}) []*Problem {
	if err := c.Bind(req); err != nil {
		return problemsFrom(err)
	}
	if err := defaults.Set(req); err != nil {
		return problemsFrom(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return problemsFrom(err)
	}
	return nil
}

func problemsFrom(err error) []*Problem {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]*Problem, 0, len(verrs))
		for _, fe := range verrs {
			p := BadRequest(fe.Field(), ruleMessage(fe))
			p.Code = "ERR_" + strings.ToUpper(fe.Tag())
			p.Params = ruleParams(fe)
			out = append(out, p)
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []*Problem{BadRequest("", fmt.Sprint(he.Message))}
	}
	return []*Problem{BadRequest("", err.Error())}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", fe.Field(), bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", fe.Field(), bound, fe.Param())
	case "oneof":
		return fmt.Sprintf(ruleMessages["oneof"], fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	if format, ok := ruleMessages[fe.Tag()]; ok {
		return fmt.Sprintf(format, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
}

func ruleParams(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	case "gt", "lt":
		return map[string]interface{}{"value": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	}
	return nil
}
