package loadersdk

import (
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-200 response from the gateway.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("loader: status %d: %s", e.StatusCode, e.Body)
}

// Denied reports whether the gateway refused the HWID.
func (e *Error) Denied() bool {
	return e.StatusCode == http.StatusForbidden
}

// Expired reports whether the HWID held a temporal grant that has lapsed.
func (e *Error) Expired() bool {
	return e.Denied() && e.Body == ReasonExpired
}

func newError(statusCode int, body []byte) *Error {
	return &Error{StatusCode: statusCode, Body: strings.TrimSpace(string(body))}
}
