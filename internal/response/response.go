// Package response implements the {code, msg, data} JSON envelope every
// Gatehouse endpoint speaks. code=0 is success and code=3 is the
// "second factor required" workflow sentinel -- a success variant of the
// login operation, not an error. All failure codes come from apperror.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope codes owned by this package. Failure codes live in apperror.
const (
	CodeOK                = 0
	CodeTwoFactorRequired = 3
)

// Envelope is the wire shape of every JSON response.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// OK writes a code=0 envelope with HTTP 200.
func OK(c echo.Context, msg string, data any) error {
	return c.JSON(http.StatusOK, Envelope{Code: CodeOK, Msg: msg, Data: data})
}

// TwoFactorRequired writes the code=3 sentinel with HTTP 200. The data
// carries the temp token and masked email the client needs for the
// second step.
func TwoFactorRequired(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Envelope{
		Code: CodeTwoFactorRequired,
		Msg:  "second factor required",
		Data: data,
	})
}

// Fail writes a failure envelope with the given HTTP status. Used by the
// central error handler; handlers themselves return apperror values.
func Fail(c echo.Context, status, code int, msg string) error {
	return c.JSON(status, Envelope{Code: code, Msg: msg})
}
