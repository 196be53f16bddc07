package protocol

import (
	"errors"
	"net"
	"strings"
)

// ConnError wraps a failure with a classified status code for
// orchestration decisions. URL is the request URL at the time of
// failure, which may differ from the original target after redirects.
type ConnError struct {
	Code    StatusCode
	Message string
	URL     string
	Cause   error
}

func (e *ConnError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.URL != "" {
		sb.WriteString(" (")
		sb.WriteString(e.URL)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ConnError) Unwrap() error {
	return e.Cause
}

// IsHard reports whether the failure must not be silently retried.
// Hardness propagates through wrapping: a soft code backed by a hard
// cause, or by an unresolvable-host failure, is still hard.
func (e *ConnError) IsHard() bool {
	if e.Code.IsHard() {
		return true
	}
	if e.Cause == nil {
		return false
	}
	var ce *ConnError
	if errors.As(e.Cause, &ce) && ce.IsHard() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(e.Cause, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	return false
}

// NewConnError creates a classified connection error.
func NewConnError(code StatusCode, message string) *ConnError {
	return &ConnError{Code: code, Message: message}
}

// NewConnErrorAt is NewConnError with the originating URL attached.
func NewConnErrorAt(code StatusCode, url, message string) *ConnError {
	return &ConnError{Code: code, Message: message, URL: url}
}

// IsHardError reports whether err (or anything it wraps) is a hard
// classified failure.
func IsHardError(err error) bool {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce.IsHard()
	}
	return false
}

// CodeOf extracts the classified code from err, or StatusUnknown when
// err carries no classification.
func CodeOf(err error) StatusCode {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return StatusUnknown
}

// Classify converts an arbitrary I/O error into a ConnError at the
// boundary where it is first caught. Already classified errors pass
// through unchanged.
func Classify(err error, url string) *ConnError {
	if err == nil {
		return nil
	}
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConnError{Code: StatusUnknown, Message: "request failed", URL: url, Cause: err}
}
