// Package auth implements the per-origin connection strategies. Each
// strategy knows how to sign outbound requests for its scheme, how to
// obtain client credentials for its origin, and how to acquire or
// refresh a user access token. The request execution machinery is
// shared; only the signing and token flows differ.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openfedi/fedclient-go/internal/callback"
	"github.com/openfedi/fedclient-go/internal/creds"
	"github.com/openfedi/fedclient-go/internal/discovery"
	"github.com/openfedi/fedclient-go/internal/origin"
	httpclient "github.com/openfedi/fedclient-go/internal/platform/http/client"
	"github.com/openfedi/fedclient-go/internal/platform/logutil"
	"github.com/openfedi/fedclient-go/internal/protocol"
)

// Client is one connection strategy bound to one origin descriptor.
type Client interface {
	// GetRequest performs the GET described by res.Request, following
	// redirects, and records the outcome on res.
	GetRequest(ctx context.Context, res *protocol.ResponseResult) error

	// PostRequest performs the POST described by res.Request. legacy
	// selects the fully buffered body encoding instead of the
	// streamed one.
	PostRequest(ctx context.Context, res *protocol.ResponseResult, legacy bool) error

	// AcquireOrRefreshAccess makes sure a usable user token is on
	// hand, running the interactive authorization flow when needed.
	AcquireOrRefreshAccess(ctx context.Context) error

	// RegisterClient obtains client credentials from the origin.
	RegisterClient(ctx context.Context) error

	// SetUserCredentials installs an externally obtained user token.
	SetUserCredentials(ctx context.Context, tok creds.UserToken) error

	// ClearCredentials forgets the user token, and for dynamic client
	// registrations the client key as well.
	ClearCredentials(ctx context.Context) error

	// CredentialsPresent reports whether a user token is on hand.
	CredentialsPresent() bool
}

// Deps bundles the collaborators a strategy needs.
type Deps struct {
	HTTP      *httpclient.Client
	Creds     *creds.Store
	Discovery *discovery.Client
	Callback  *callback.Listener
	Logger    *slog.Logger

	// LogNetwork enables per-request wire logging.
	LogNetwork bool

	// AuthorizePrompt is invoked with the URL the user must visit to
	// approve the authorization. Nil means the URL is only logged.
	AuthorizePrompt func(authorizeURL string)
}

// New builds the strategy for the descriptor's auth kind.
func New(desc *origin.Descriptor, deps Deps) (Client, error) {
	deps.Logger = logutil.NoopIfNil(deps.Logger)
	b := newBase(desc, deps)
	switch desc.Auth {
	case origin.AuthNone:
		return &plainClient{base: b}, nil
	case origin.AuthBasic:
		return &basicClient{base: b}, nil
	case origin.AuthOAuth1:
		return newOAuth1Client(b), nil
	case origin.AuthOAuth2:
		return newOAuth2Client(b), nil
	default:
		return nil, fmt.Errorf("unknown auth kind %q", desc.Auth)
	}
}
