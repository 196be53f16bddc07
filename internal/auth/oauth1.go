package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/openfedi/fedclient-go/internal/creds"
	"github.com/openfedi/fedclient-go/internal/origin"
	"github.com/openfedi/fedclient-go/internal/protocol"
)

// oauth1Client implements three-legged OAuth 1.0a with HMAC-SHA1
// signatures. Pump.io origins additionally use dialback for the first
// hop to a foreign host.
type oauth1Client struct {
	*base

	mu     sync.Mutex
	token  creds.UserToken
	loaded bool
}

func newOAuth1Client(b *base) *oauth1Client {
	return &oauth1Client{base: b}
}

func (c *oauth1Client) userToken(ctx context.Context) (creds.UserToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.token, nil
	}
	tok, err := c.creds.LoadUserToken(ctx, c.originHost, c.desc.Account)
	if err != nil {
		return creds.UserToken{}, err
	}
	c.token = tok
	c.loaded = true
	return tok, nil
}

func (c *oauth1Client) setToken(tok creds.UserToken) {
	c.mu.Lock()
	c.token = tok
	c.loaded = true
	c.mu.Unlock()
}

func (c *oauth1Client) GetRequest(ctx context.Context, res *protocol.ResponseResult) error {
	if !res.Request.Authenticate {
		return c.doGet(ctx, res, unsigned)
	}
	sign, err := c.apiSigner(ctx)
	if err != nil {
		res.SetException(err)
		return err
	}
	return c.doGet(ctx, res, sign)
}

func (c *oauth1Client) PostRequest(ctx context.Context, res *protocol.ResponseResult, legacy bool) error {
	if !res.Request.Authenticate {
		return c.doPost(ctx, res, legacy, unsigned)
	}
	sign, err := c.apiSigner(ctx)
	if err != nil {
		res.SetException(err)
		return err
	}
	return c.doPost(ctx, res, legacy, sign)
}

// apiSigner builds the per-attempt signing function. On the origin's
// own host requests carry the full consumer+token signature. The
// first hop to a foreign host uses dialback for pump.io origins; a
// redirect that left the origin signs with consumer credentials only.
func (c *oauth1Client) apiSigner(ctx context.Context) (signFunc, error) {
	cc, err := c.resolveClient(ctx, c.RegisterClient)
	if err != nil {
		return nil, err
	}
	tok, err := c.userToken(ctx)
	if err != nil {
		return nil, err
	}
	return func(req *http.Request, hop int, sameHost bool) error {
		if sameHost {
			return newOAuth1Signer(cc.Key, cc.Secret, tok.Access, tok.Secret).sign(req, nil)
		}
		if hop == 0 && c.desc.Type == origin.TypePumpIO {
			return c.signDialback(req)
		}
		return newOAuth1Signer(cc.Key, cc.Secret, "", "").sign(req, nil)
	}, nil
}

// signDialback attaches a pump.io dialback assertion: the remote end
// dials the named host back to verify the token.
func (c *oauth1Client) signDialback(req *http.Request) error {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	req.Header.Set("Authorization",
		fmt.Sprintf("Dialback host=%q, token=%q", c.originHost, token))
	return nil
}

// RegisterClient performs pump.io style client association, the only
// dynamic registration OAuth1 origins in the wild offer.
func (c *oauth1Client) RegisterClient(ctx context.Context) error {
	endpoint := c.desc.RegistrationEndpoint()
	payload, err := json.Marshal(map[string]any{
		"type":             "client_associate",
		"application_name": c.http.UserAgent(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return protocol.NewConnErrorAt(protocol.StatusBadRequest, endpoint, err.Error())
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.Classify(err, endpoint)
	}
	defer resp.Body.Close()
	body, err := c.http.ReadBody(resp)
	if err != nil {
		return protocol.Classify(err, endpoint)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return protocol.NewConnErrorAt(protocol.FromHTTP(resp.StatusCode), endpoint,
			fmt.Sprintf("client registration returned %d", resp.StatusCode))
	}

	key := gjson.GetBytes(body, "client_id").String()
	secret := gjson.GetBytes(body, "client_secret").String()
	if key == "" || secret == "" {
		return protocol.NewConnErrorAt(protocol.StatusNoCredentialsForHost, endpoint,
			"registration response lacks client_id or client_secret")
	}
	c.logger.Info("registered oauth1 client", "host", c.originHost)
	return c.creds.Save(ctx, c.originHost, creds.ClientCredentials{
		Key:        key,
		Secret:     secret,
		Provenance: creds.ProvenanceDynamic,
	})
}

// AcquireOrRefreshAccess runs the three-legged flow when no token is
// on hand. OAuth1 tokens do not expire, so a present token is final.
func (c *oauth1Client) AcquireOrRefreshAccess(ctx context.Context) error {
	tok, err := c.userToken(ctx)
	if err != nil {
		return err
	}
	if tok.Present() {
		return nil
	}
	if c.deps.Callback == nil {
		return protocol.NewConnError(protocol.StatusAuthenticationError,
			"interactive authorization requires the callback listener")
	}

	cc, err := c.resolveClient(ctx, c.RegisterClient)
	if err != nil {
		return err
	}

	// Leg 1: request token.
	reqToken, reqSecret, err := c.obtainRequestToken(ctx, cc)
	if err != nil {
		return err
	}

	// Leg 2: user authorization through the callback listener.
	authorizeURL := c.desc.AuthorizationEndpoint() + "?oauth_token=" + url.QueryEscape(reqToken)
	c.promptAuthorize(authorizeURL)
	cbRes, err := c.deps.Callback.Await(ctx, reqToken)
	if err != nil {
		return protocol.NewConnError(protocol.StatusAuthenticationError,
			"authorization was not completed: "+err.Error())
	}
	if cbRes.OAuthVerifier == "" {
		return protocol.NewConnError(protocol.StatusAuthenticationError,
			"authorization callback carried no verifier")
	}

	// Leg 3: exchange for the access token.
	access, err := c.obtainAccessToken(ctx, cc, reqToken, reqSecret, cbRes.OAuthVerifier)
	if err != nil {
		return err
	}

	if err := c.creds.SaveUserToken(ctx, c.originHost, c.desc.Account, access); err != nil {
		return err
	}
	c.setToken(access)
	c.logger.Info("acquired oauth1 access token", "host", c.originHost)
	return nil
}

func (c *oauth1Client) obtainRequestToken(ctx context.Context, cc creds.ClientCredentials) (string, string, error) {
	endpoint := c.desc.RequestTokenEndpoint()
	extra := url.Values{"oauth_callback": {c.deps.Callback.RedirectURL()}}
	vals, err := c.tokenLeg(ctx, endpoint, newOAuth1Signer(cc.Key, cc.Secret, "", ""), extra)
	if err != nil {
		return "", "", err
	}
	tok, secret := vals.Get("oauth_token"), vals.Get("oauth_token_secret")
	if tok == "" {
		return "", "", protocol.NewConnErrorAt(protocol.StatusAuthenticationError, endpoint,
			"request token response carried no oauth_token")
	}
	return tok, secret, nil
}

func (c *oauth1Client) obtainAccessToken(ctx context.Context, cc creds.ClientCredentials, reqToken, reqSecret, verifier string) (creds.UserToken, error) {
	endpoint := c.desc.AccessTokenEndpoint()
	extra := url.Values{"oauth_verifier": {verifier}}
	vals, err := c.tokenLeg(ctx, endpoint, newOAuth1Signer(cc.Key, cc.Secret, reqToken, reqSecret), extra)
	if err != nil {
		return creds.UserToken{}, err
	}
	access, secret := vals.Get("oauth_token"), vals.Get("oauth_token_secret")
	if access == "" || secret == "" {
		return creds.UserToken{}, protocol.NewConnErrorAt(protocol.StatusAuthenticationError, endpoint,
			"access token response is incomplete")
	}
	return creds.UserToken{Access: access, Secret: secret}, nil
}

// tokenLeg posts one signed token-flow request and parses the
// form-encoded response.
func (c *oauth1Client) tokenLeg(ctx context.Context, endpoint string, signer oauth1Signer, extra url.Values) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, protocol.NewConnErrorAt(protocol.StatusBadRequest, endpoint, err.Error())
	}
	if err := signer.sign(req, extra); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, protocol.Classify(err, endpoint)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, protocol.Classify(err, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, protocol.NewConnErrorAt(protocol.FromHTTP(resp.StatusCode), endpoint,
			fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	vals, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, protocol.NewConnErrorAt(protocol.StatusAuthenticationError, endpoint,
			"malformed token response: "+err.Error())
	}
	return vals, nil
}

func (c *oauth1Client) SetUserCredentials(ctx context.Context, tok creds.UserToken) error {
	if !tok.Present() {
		return protocol.NewConnError(protocol.StatusBadRequest, "token and token secret are required")
	}
	if err := c.creds.SaveUserToken(ctx, c.originHost, c.desc.Account, tok); err != nil {
		return err
	}
	c.setToken(tok)
	return nil
}

// ClearCredentials drops the user token and any dynamically obtained
// client key so the next connection starts clean.
func (c *oauth1Client) ClearCredentials(ctx context.Context) error {
	if err := c.creds.ClearUserToken(ctx, c.originHost, c.desc.Account); err != nil {
		return err
	}
	c.setToken(creds.UserToken{})
	return c.creds.Clear(ctx, c.originHost)
}

func (c *oauth1Client) CredentialsPresent() bool {
	tok, err := c.userToken(context.Background())
	return err == nil && tok.Present()
}
