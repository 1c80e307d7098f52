package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pshannon/claimspay/internal/domain"
)

// errorResponse is the JSON error body for every API endpoint.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain error codes onto HTTP status codes.
func statusFor(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the structured error body for err.
// Internal details never leak; domain.ErrorMessage substitutes a generic
// message for EINTERNAL errors.
func respondError(c echo.Context, err error) error {
	code := domain.ErrorCode(err)
	return c.JSON(statusFor(code), errorResponse{
		Error: domain.ErrorMessage(err),
		Code:  code,
	})
}
