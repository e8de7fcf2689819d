// Package fetch defines the transport capability used by the synchronizer:
// given a source locator, return the raw bytes or a classified failure.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Fetcher retrieves the content of one source.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// Func adapts a plain function to Fetcher.
type Func func(ctx context.Context, source string) ([]byte, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, source string) ([]byte, error) {
	return f(ctx, source)
}

// Reason classifies why a fetch failed.
type Reason string

const (
	ReasonTimeout            Reason = "timeout"
	ReasonNetwork            Reason = "network"
	ReasonNotFound           Reason = "not-found"
	ReasonForbidden          Reason = "forbidden"
	ReasonStorageQuota       Reason = "storage-quota"
	ReasonHTTPStatus         Reason = "http-status"
	ReasonMissingCredentials Reason = "missing-credentials"
	ReasonTooLarge           Reason = "too-large"
	ReasonInvalidSource      Reason = "invalid-source"
	ReasonCanceled           Reason = "canceled"
	ReasonUnknown            Reason = "unknown"
)

// Error is the failure returned by every Fetcher in this module.
type Error struct {
	Reason Reason
	Source string
	Status int // HTTP status when known
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Source, e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying may change the outcome.
func (e *Error) Transient() bool {
	switch e.Reason {
	case ReasonTimeout, ReasonNetwork, ReasonUnknown:
		return true
	case ReasonHTTPStatus:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// NewError builds an Error.
func NewError(reason Reason, source string, err error) *Error {
	return &Error{Reason: reason, Source: source, Err: err}
}

// Classify turns any error returned by a transport into an *Error. Errors that
// already are *Error are returned unchanged.
func Classify(source string, err error) *Error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ReasonTimeout, source, err)
	case errors.Is(err, context.Canceled):
		return NewError(ReasonCanceled, source, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(ReasonTimeout, source, err)
		}
		return NewError(ReasonNetwork, source, err)
	}

	return NewError(ReasonUnknown, source, err)
}

// ReasonOf returns the reason of err, or ReasonUnknown when err is not a
// fetch error.
func ReasonOf(err error) Reason {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonUnknown
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return true
}
