package client

import (
	"errors"
	"net/http"
)

var (
	// ErrStreamUnavailable is returned when a successful creation response has no readable body
	ErrStreamUnavailable = errors.New("response stream unavailable")

	// ErrMissingToken is returned when neither a call token nor a token provider is available
	ErrMissingToken = errors.New("missing bearer token")
)

// TransportError is returned for any non-2xx response.
type TransportError struct {
	StatusCode int
}

func (e *TransportError) Error() string {
	return "An error has occurred: " + http.StatusText(e.StatusCode)
}

// IsNotFound reports whether err is a TransportError with status 404.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}
