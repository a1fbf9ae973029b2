package homeassistant

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredentials  = errors.New("homeassistant: base URL and token are required")
	ErrUnsupportedMethod   = errors.New("homeassistant: unsupported HTTP method")
	ErrRequestFailed       = errors.New("homeassistant: request failed")
	ErrUnauthorized        = errors.New("homeassistant: unauthorized, check the access token")
	ErrLocationUnavailable = errors.New("homeassistant: latitude or longitude not found in the configuration")
)

// StatusError is a non-2xx response from Home Assistant.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("home assistant API error %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == 401 {
		return ErrUnauthorized
	}
	return nil
}

// RequestError is returned once every attempt of a request has failed.
type RequestError struct {
	BaseURL  string
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("failed to connect to Home Assistant at %s after %d attempts: %v", e.BaseURL, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() []error {
	return []error{ErrRequestFailed, e.Err}
}
