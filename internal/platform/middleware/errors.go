package middleware

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorCodeValidation is the code of every 400 caused by field validation.
const ErrorCodeValidation = "validation_error"

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// NewErrorResponse builds an ErrorResponse whose code is derived from the
// status text, e.g. 413 -> "request_entity_too_large".
func NewErrorResponse(status int, message string) *ErrorResponse {
	return &ErrorResponse{
		StatusCode: status,
		Code:       strcase.ToSnake(http.StatusText(status)),
		Message:    message,
	}
}

// toErrorResponse maps a handler error onto the wire format. Field validation
// errors (anything unwrapping to validation.Errors) become a 400 with per
// field details.
func toErrorResponse(err error) *ErrorResponse {
	var er *ErrorResponse
	if errors.As(err, &er) {
		cp := *er
		return &cp
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprintf("%v", he.Message)
		if he.Internal != nil {
			msg = fmt.Sprintf("%s: %v", msg, he.Internal)
		}
		return NewErrorResponse(he.Code, msg)
	}

	var ve validation.Errors
	if errors.As(err, &ve) {
		details := make(map[string]string, len(ve))
		for key, value := range ve {
			details[key] = value.Error()
		}
		return &ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Code:       ErrorCodeValidation,
			Message:    "validation error",
			Details:    details,
		}
	}

	return NewErrorResponse(http.StatusInternalServerError, err.Error())
}

// APIErrorHandler renders errors as ErrorResponse JSON. 5xx responses are
// logged; their message is replaced so storage errors are not leaked.
func APIErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		resp := toErrorResponse(err)
		resp.RequestID = requestIDFrom(c)
		if resp.StatusCode >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", resp.RequestID).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Msg("request failed")
			if resp.StatusCode == http.StatusInternalServerError {
				resp.Message = "internal server error"
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(resp.StatusCode)
		} else {
			werr = c.JSON(resp.StatusCode, resp)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
