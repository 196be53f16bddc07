package protocol

import (
	"net/url"
	"strings"
)

// Verb is the HTTP method of a request descriptor.
type Verb string

const (
	VerbGet  Verb = "GET"
	VerbPost Verb = "POST"
)

// Routine tags the logical API call a descriptor belongs to. It is
// used for logging and for the few branch points that care (file
// downloads, client registration).
type Routine string

const (
	RoutineGeneric        Routine = "generic"
	RoutineDownloadFile   Routine = "download_file"
	RoutineRegisterClient Routine = "register_client"
	RoutineAccessToken    Routine = "access_token"
	RoutineDiscovery      Routine = "discovery"
)

// TriState is an optional boolean: unknown until explicitly set.
type TriState int

const (
	TriUnknown TriState = iota
	TriTrue
	TriFalse
)

// Known reports whether the value has been decided.
func (t TriState) Known() bool { return t != TriUnknown }

// ConnectionPolicy states what connectivity a request requires. The
// core only carries it through; enforcement belongs to the caller.
type ConnectionPolicy int

const (
	ConnectionAny ConnectionPolicy = iota
	ConnectionUnmetered
)

// RequestDescriptor is an immutable description of one logical call.
// Build it, Validate it, then hand it to the executor; nothing in the
// core mutates it.
type RequestDescriptor struct {
	Verb    Verb
	URI     string
	Routine Routine

	// JSONBody is the raw JSON payload for POST requests. Mutually
	// exclusive with Attachment in practice.
	JSONBody []byte

	// Attachment is a local file to upload as multipart content.
	Attachment            string
	AttachmentContentType string

	// DestFile, when set, streams the response body to a local file
	// instead of buffering it.
	DestFile string

	// Authenticate opts the request into the origin's signing scheme.
	// When false the request goes out bare even when credentials are
	// on hand.
	Authenticate bool

	Connection ConnectionPolicy

	// MaxBodyBytes bounds a downloaded body; past it the attempt is a
	// hard failure even on HTTP 200. Zero means unbounded.
	MaxBodyBytes int64

	// LegacyHTTP forces or forbids the legacy POST encoding. Unknown
	// enables the one-shot modern-then-legacy fallback.
	LegacyHTTP TriState
}

// Validate rejects descriptors that must not reach the network.
func (r RequestDescriptor) Validate() error {
	if strings.TrimSpace(r.URI) == "" {
		return NewConnError(StatusBadRequest, "empty request URI")
	}
	if r.Verb == "" {
		return NewConnError(StatusBadRequest, "missing verb")
	}
	return nil
}

// IsRemote reports whether the target URI points at a network
// resource. Download descriptors with a non-remote URI are served from
// the local filesystem instead.
func (r RequestDescriptor) IsRemote() bool {
	u, err := url.Parse(r.URI)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// NewResult produces a fresh accumulator for one execution attempt
// bound to this descriptor.
func (r RequestDescriptor) NewResult() *ResponseResult {
	return newResult(r)
}
