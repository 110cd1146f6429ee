package apiclient

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the backend rejects the bearer token.
// The stored session has already been cleared by the time callers see it.
var ErrUnauthorized = errors.New("unauthorized")

// APIError carries a normalized non-2xx backend response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error %d", e.Status)
}

// errorEnvelope matches the two error body shapes the backend produces:
// a structured {"error": {"code", "message"}} envelope or a plain
// {"detail": "..."} from validation failures.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Detail string `json:"detail"`
}
