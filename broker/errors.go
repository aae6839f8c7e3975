package broker

import "errors"

// Gateway error taxonomy. Transient failures are worth retrying on the
// next poll; the rest indicate a broken configuration and should stop the
// caller.
var (
	ErrNetwork = errors.New("network error")
	ErrTimeout = errors.New("request timed out")
	ErrServer  = errors.New("server error")

	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	ErrSymbolNotFound = errors.New("symbol not found")
)

// Retryable reports whether err is a transient gateway failure. Unknown
// errors are treated as retryable so a flaky adapter does not kill the
// monitor on the first hiccup.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrBadRequest):
		return false
	default:
		return true
	}
}
