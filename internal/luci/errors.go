package luci

import (
	"errors"
	"fmt"

	"github.com/micro-ha/mwan3-status/internal/model"
)

var (
	// ErrCannotConnect covers transport failures and unexpected HTTP statuses.
	ErrCannotConnect = errors.New("cannot connect to router")
	// ErrInvalidAuth means the login form rejected the credentials.
	ErrInvalidAuth = errors.New("invalid credentials")
	// ErrAuthExpired means the router answered 401/403 to an authenticated request.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrInvalidResponse means the status body did not have the expected shape.
	ErrInvalidResponse = errors.New("invalid status response")
	// ErrNoInterfaces means the router reported an empty interface set.
	ErrNoInterfaces = errors.New("no mwan3 interfaces reported")
)

// StatusError is returned when the router answers with an unexpected HTTP status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	if e == nil {
		return "unexpected router status"
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorCode maps an error onto the short code shown by configuration UIs.
func ErrorCode(err error) string {
	var verr *model.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "invalid_config"
	case errors.Is(err, ErrInvalidAuth):
		return "invalid_auth"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrNoInterfaces):
		return "no_interfaces"
	case errors.Is(err, ErrCannotConnect):
		return "cannot_connect"
	default:
		return "unknown"
	}
}
