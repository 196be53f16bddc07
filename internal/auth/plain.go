package auth

import (
	"context"
	"net/http"

	"github.com/openfedi/fedclient-go/internal/creds"
	"github.com/openfedi/fedclient-go/internal/protocol"
)

// plainClient performs unauthenticated requests. Used for public
// timelines and origins that expose an open API.
type plainClient struct {
	*base
}

func (c *plainClient) GetRequest(ctx context.Context, res *protocol.ResponseResult) error {
	return c.doGet(ctx, res, c.sign)
}

func (c *plainClient) PostRequest(ctx context.Context, res *protocol.ResponseResult, legacy bool) error {
	return c.doPost(ctx, res, legacy, c.sign)
}

func (c *plainClient) sign(req *http.Request, hop int, sameHost bool) error {
	return nil
}

// AcquireOrRefreshAccess is a no-op: there is nothing to acquire.
func (c *plainClient) AcquireOrRefreshAccess(ctx context.Context) error { return nil }

// RegisterClient is a no-op: the origin issues no client credentials.
func (c *plainClient) RegisterClient(ctx context.Context) error { return nil }

func (c *plainClient) SetUserCredentials(ctx context.Context, tok creds.UserToken) error {
	return protocol.NewConnError(protocol.StatusBadRequest, "origin uses no authentication")
}

func (c *plainClient) ClearCredentials(ctx context.Context) error { return nil }

func (c *plainClient) CredentialsPresent() bool { return true }
