// Package client provides a safe outbound HTTP client with SSRF protections.
// See client.go for the concrete implementation.

package client

import "net/http"

// Doer is the shared single-attempt interface for outbound HTTP
// requests. Implemented by Client; used by the discovery and auth
// packages to avoid per-package interface duplication.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
