package lookup

import "fmt"

// NetworkError indicates the backend could not be reached
type NetworkError struct {
	Field string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: field %s: %v", e.Field, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError indicates a non-2xx answer
type HTTPError struct {
	Field      string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: field %s", e.StatusCode, e.Field)
}

// ParseError indicates a response body that is not a value list
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: field %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
