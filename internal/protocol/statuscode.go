// Package protocol defines the request/response model shared by all
// connection strategies: the classified status taxonomy, the typed
// connection error, the immutable request descriptor and the per-attempt
// response accumulator.
package protocol

import "fmt"

// StatusCode is the classified outcome of one request attempt.
// Every code carries a hard/soft bit used by the retry policy: hard
// failures must never be silently retried, soft failures are eligible
// for throttled retry later.
type StatusCode int

const (
	StatusUnknown StatusCode = iota
	StatusOK
	StatusUnsupportedAPI
	StatusNotFound
	StatusBadRequest
	StatusAuthenticationError
	StatusCredentialsOfOtherAccount
	StatusNoCredentialsForHost
	StatusUnauthorized
	StatusForbidden
	StatusInternalServerError
	StatusBadGateway
	StatusServiceUnavailable
	StatusMoved
	StatusRequestEntityTooLarge
	StatusLengthRequired
	StatusTooManyRequests
	StatusDelayed
	StatusClientError
	StatusServerError
)

// FromHTTP maps a numeric HTTP status to a classified code.
// The mapping is total and pure; unknown 4xx/5xx fall into the
// catch-all client/server buckets.
func FromHTTP(code int) StatusCode {
	switch code {
	case 200, 201, 304:
		return StatusOK
	case 301, 302, 303, 307:
		return StatusMoved
	case 400:
		return StatusBadRequest
	case 401:
		return StatusUnauthorized
	case 403:
		return StatusForbidden
	case 404:
		return StatusNotFound
	case 411:
		return StatusLengthRequired
	case 413:
		return StatusRequestEntityTooLarge
	case 429:
		return StatusTooManyRequests
	case 500:
		return StatusInternalServerError
	case 502:
		return StatusBadGateway
	case 503:
		return StatusServiceUnavailable
	}
	switch {
	case code >= 500:
		return StatusServerError
	case code >= 400:
		return StatusClientError
	}
	return StatusUnknown
}

// IsHard reports whether the code is a hard failure. StatusMoved is
// hard in the sense of "must be followed, not retried in place".
func (s StatusCode) IsHard() bool {
	switch s {
	case StatusUnsupportedAPI,
		StatusNotFound,
		StatusBadRequest,
		StatusAuthenticationError,
		StatusCredentialsOfOtherAccount,
		StatusNoCredentialsForHost,
		StatusForbidden,
		StatusInternalServerError,
		StatusBadGateway,
		StatusMoved,
		StatusRequestEntityTooLarge,
		StatusLengthRequired,
		StatusClientError,
		StatusServerError:
		return true
	}
	return false
}

// IsOK reports a successful classification.
func (s StatusCode) IsOK() bool { return s == StatusOK }

func (s StatusCode) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusOK:
		return "ok"
	case StatusUnsupportedAPI:
		return "unsupported_api"
	case StatusNotFound:
		return "not_found"
	case StatusBadRequest:
		return "bad_request"
	case StatusAuthenticationError:
		return "authentication_error"
	case StatusCredentialsOfOtherAccount:
		return "credentials_of_other_account"
	case StatusNoCredentialsForHost:
		return "no_credentials_for_host"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusForbidden:
		return "forbidden"
	case StatusInternalServerError:
		return "internal_server_error"
	case StatusBadGateway:
		return "bad_gateway"
	case StatusServiceUnavailable:
		return "service_unavailable"
	case StatusMoved:
		return "moved"
	case StatusRequestEntityTooLarge:
		return "request_entity_too_large"
	case StatusLengthRequired:
		return "length_required"
	case StatusTooManyRequests:
		return "too_many_requests"
	case StatusDelayed:
		return "delayed"
	case StatusClientError:
		return "client_error"
	case StatusServerError:
		return "server_error"
	}
	return fmt.Sprintf("StatusCode(%d)", int(s))
}
