package scraper

import (
	"errors"
	"fmt"
)

// ErrConnection indicates a network connectivity failure while fetching
// a street's page. Connection failures are transient and retried.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates a timeout while issuing a request. Timeouts are
// transient and retried.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrBadStatus indicates a non-2xx response for a street page. The page
// will not get better on an immediate retry, so it is treated like a
// content failure.
type ErrBadStatus struct {
	Status int
}

func (e ErrBadStatus) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}

// ErrNoDate indicates the street page was fetched but contained no
// usable collection date. Not retried: the page did not change.
type ErrNoDate struct {
	Street string
}

func (e ErrNoDate) Error() string {
	return fmt.Sprintf("no usable date for street %q", e.Street)
}

// IsTransient reports whether an error is worth an immediate retry.
func IsTransient(err error) bool {
	var conn ErrConnection
	if errors.As(err, &conn) {
		return true
	}
	var timeout ErrTimeout
	return errors.As(err, &timeout)
}

// ErrorLabel buckets an error for logging and metrics.
func ErrorLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var status ErrBadStatus
	if errors.As(err, &status) {
		return "bad_status"
	}
	var noDate ErrNoDate
	if errors.As(err, &noDate) {
		return "no_date"
	}
	return "other"
}
