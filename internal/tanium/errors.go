package tanium

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigurationError reports missing or ambiguous client configuration.
// The message is meant to be shown to the operator as is.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// AuthenticationError is returned when Tanium rejects the credentials or the
// session. SessionExpired is set when a freshly obtained session was still
// refused with 403.
type AuthenticationError struct {
	StatusCode     int
	Message        string
	SessionExpired bool
}

func (e *AuthenticationError) Error() string {
	if e.SessionExpired {
		return "session rejected after re-authentication: " + e.Message
	}
	return e.Message
}

// RequestError is a 400/404 from Tanium, or any status the transport was not
// told to accept. Message follows the vendor text when there is one.
type RequestError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *RequestError) Error() string { return e.Message }

// TransportError wraps a network-level failure.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tanium %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is a *ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsAuthentication reports whether err is a *AuthenticationError.
func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsRequest reports whether err is a *RequestError.
func IsRequest(err error) bool {
	var target *RequestError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a *RequestError for a 404.
func IsNotFound(err error) bool {
	var target *RequestError
	return errors.As(err, &target) && target.StatusCode == http.StatusNotFound
}

// IsTransport reports whether err is a *TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}
