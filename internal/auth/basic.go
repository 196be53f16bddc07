package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/openfedi/fedclient-go/internal/creds"
	"github.com/openfedi/fedclient-go/internal/protocol"
)

// basicClient signs requests with HTTP Basic credentials taken from
// the origin settings or installed at runtime.
type basicClient struct {
	*base

	mu       sync.RWMutex
	username string
	password string
}

func (c *basicClient) credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.username != "" || c.password != "" {
		return c.username, c.password
	}
	return c.desc.Settings.Username, c.desc.Settings.Password
}

func (c *basicClient) GetRequest(ctx context.Context, res *protocol.ResponseResult) error {
	return c.doGet(ctx, res, c.sign)
}

func (c *basicClient) PostRequest(ctx context.Context, res *protocol.ResponseResult, legacy bool) error {
	return c.doPost(ctx, res, legacy, c.sign)
}

// Credentials ride only on the origin's own host. A redirect off-host
// gets the request bare.
func (c *basicClient) sign(req *http.Request, hop int, sameHost bool) error {
	if !sameHost {
		return nil
	}
	user, pass := c.credentials()
	if user == "" {
		return protocol.NewConnError(protocol.StatusNoCredentialsForHost,
			"no basic credentials for "+c.originHost)
	}
	req.SetBasicAuth(user, pass)
	return nil
}

// AcquireOrRefreshAccess only verifies credentials are configured;
// basic auth has no token flow.
func (c *basicClient) AcquireOrRefreshAccess(ctx context.Context) error {
	if user, _ := c.credentials(); user == "" {
		return protocol.NewConnError(protocol.StatusNoCredentialsForHost,
			"no basic credentials for "+c.originHost)
	}
	return nil
}

// RegisterClient is a no-op for basic auth.
func (c *basicClient) RegisterClient(ctx context.Context) error { return nil }

// SetUserCredentials installs username and password. Access carries
// the username, Secret the password.
func (c *basicClient) SetUserCredentials(ctx context.Context, tok creds.UserToken) error {
	c.mu.Lock()
	c.username = tok.Access
	c.password = tok.Secret
	c.mu.Unlock()
	return nil
}

func (c *basicClient) ClearCredentials(ctx context.Context) error {
	c.mu.Lock()
	c.username = ""
	c.password = ""
	c.mu.Unlock()
	return nil
}

func (c *basicClient) CredentialsPresent() bool {
	user, _ := c.credentials()
	return user != ""
}
