package api

import (
	"errors"
	"fmt"
)

// ErrNoWebsocketEndpoint is returned when the endpoint lookup did not
// provide a websocket URL.
var ErrNoWebsocketEndpoint = errors.New("no websocket endpoint resolved for access point")

// WebsocketError represents a failed websocket handshake.
type WebsocketError struct {
	URL        string
	StatusCode int
	Underlying error
}

func (e WebsocketError) Error() string {
	return fmt.Sprintf("websocket handshake with %s failed (status %d): %v", e.URL, e.StatusCode, e.Underlying)
}

func (e WebsocketError) Unwrap() error {
	return e.Underlying
}

// NewWebsocketError creates a websocket handshake error.
func NewWebsocketError(url string, status int, err error) *WebsocketError {
	return &WebsocketError{URL: url, StatusCode: status, Underlying: err}
}
