package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/openfedi/fedclient-go/internal/creds"
	"github.com/openfedi/fedclient-go/internal/platform/logutil"
	"github.com/openfedi/fedclient-go/internal/protocol"
)

// expirySkew renews tokens this long before their stated expiry.
const expirySkew = 60 * time.Second

var defaultScopes = []string{"read", "write", "follow"}

// oauth2Client implements the authorization-code flow with dynamic
// client registration. Requests carry a bearer token on the origin's
// host only.
type oauth2Client struct {
	*base

	mu     sync.Mutex
	token  creds.UserToken
	loaded bool
}

func newOAuth2Client(b *base) *oauth2Client {
	return &oauth2Client{base: b}
}

func (c *oauth2Client) userToken(ctx context.Context) (creds.UserToken, error) {
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

func (c *oauth2Client) setToken(tok creds.UserToken) {
	c.mu.Lock()
	c.token = tok
	c.loaded = true
	c.mu.Unlock()
}

func (c *oauth2Client) scopes() []string {
	if len(c.desc.Settings.Scopes) > 0 {
		return c.desc.Settings.Scopes
	}
	return defaultScopes
}

func (c *oauth2Client) GetRequest(ctx context.Context, res *protocol.ResponseResult) error {
	if !res.Request.Authenticate {
		return c.doGet(ctx, res, unsigned)
	}
	tok, err := c.userToken(ctx)
	if err != nil {
		res.SetException(err)
		return err
	}
	return c.doGet(ctx, res, c.bearerSigner(tok))
}

func (c *oauth2Client) PostRequest(ctx context.Context, res *protocol.ResponseResult, legacy bool) error {
	if !res.Request.Authenticate {
		return c.doPost(ctx, res, legacy, unsigned)
	}
	tok, err := c.userToken(ctx)
	if err != nil {
		res.SetException(err)
		return err
	}
	return c.doPost(ctx, res, legacy, c.bearerSigner(tok))
}

// bearerSigner attaches the token on the origin host only. Redirects
// to foreign hosts go bare so the token never leaks.
func (c *oauth2Client) bearerSigner(tok creds.UserToken) signFunc {
	return func(req *http.Request, hop int, sameHost bool) error {
		if sameHost && tok.Access != "" {
			req.Header.Set("Authorization", "Bearer "+tok.Access)
		}
		return nil
	}
}

// RegisterClient obtains client credentials, trying in order: RFC
// 7591 dynamic registration, the Mastodon apps endpoint, and finally
// a locally fabricated secret that some origins accept for public
// clients.
func (c *oauth2Client) RegisterClient(ctx context.Context) error {
	if _, err := c.deps.Discovery.Discover(ctx, c.desc); err != nil {
		c.logger.Debug("auth metadata discovery failed, using defaults", "host", c.originHost, "error", err)
	}

	if err := c.registerRFC7591(ctx); err == nil {
		return nil
	} else {
		c.logger.Debug("dynamic registration failed", "host", c.originHost, "error", err)
	}

	if err := c.registerMastodon(ctx); err == nil {
		return nil
	} else {
		c.logger.Debug("mastodon app registration failed", "host", c.originHost, "error", err)
	}

	return c.fabricateCredentials(ctx)
}

func (c *oauth2Client) redirectURL() string {
	if c.deps.Callback != nil {
		return c.deps.Callback.RedirectURL()
	}
	// Out-of-band fallback for non-interactive use.
	return "urn:ietf:wg:oauth:2.0:oob"
}

func (c *oauth2Client) registerRFC7591(ctx context.Context) error {
	endpoint := c.desc.RegistrationEndpoint()
	payload, err := json.Marshal(map[string]any{
		"client_name":                c.http.UserAgent(),
		"redirect_uris":              []string{c.redirectURL()},
		"scope":                      strings.Join(c.scopes(), " "),
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"token_endpoint_auth_method": "client_secret_basic",
	})
	if err != nil {
		return err
	}

	body, status, err := c.postJSON(ctx, endpoint, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("registration endpoint returned %d", status)
	}
	return c.saveRegistration(ctx, endpoint, body)
}

// registerMastodon uses the pre-RFC apps endpoint Mastodon and its
// forks expose.
func (c *oauth2Client) registerMastodon(ctx context.Context) error {
	endpoint := c.desc.URL + "/api/v1/apps"
	payload, err := json.Marshal(map[string]any{
		"client_name":   c.http.UserAgent(),
		"redirect_uris": c.redirectURL(),
		"scopes":        strings.Join(c.scopes(), " "),
	})
	if err != nil {
		return err
	}

	body, status, err := c.postJSON(ctx, endpoint, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("apps endpoint returned %d", status)
	}
	return c.saveRegistration(ctx, endpoint, body)
}

func (c *oauth2Client) saveRegistration(ctx context.Context, endpoint string, body []byte) error {
	key := gjson.GetBytes(body, "client_id").String()
	secret := gjson.GetBytes(body, "client_secret").String()
	if key == "" || secret == "" {
		return fmt.Errorf("registration response from %s lacks client_id or client_secret", endpoint)
	}
	c.logger.Info("registered oauth2 client",
		"host", c.originHost, "client_id", logutil.Redact(key))
	return c.creds.Save(ctx, c.originHost, creds.ClientCredentials{
		Key:        key,
		Secret:     secret,
		Provenance: creds.ProvenanceDynamic,
	})
}

// fabricateCredentials derives a deterministic client pair when the
// origin offers no registration at all. Marked loudly in the log
// because authentication will only work against origins that accept
// arbitrary client identifiers.
func (c *oauth2Client) fabricateCredentials(ctx context.Context) error {
	key := c.http.UserAgent()
	sum := sha256.Sum256([]byte(key + "|" + c.originHost))
	secret := hex.EncodeToString(sum[:])
	c.logger.Warn("FABRICATED client credentials, origin offers no registration",
		"host", c.originHost)
	return c.creds.Save(ctx, c.originHost, creds.ClientCredentials{
		Key:        key,
		Secret:     secret,
		Provenance: creds.ProvenanceDynamic,
	})
}

func (c *oauth2Client) postJSON(ctx context.Context, endpoint string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := c.http.ReadBody(resp)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// oauthConfig builds the x/oauth2 configuration from the resolved
// endpoints and client credentials.
func (c *oauth2Client) oauthConfig(cc creds.ClientCredentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cc.Key,
		ClientSecret: cc.Secret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.desc.AuthorizationEndpoint(),
			TokenURL: c.desc.TokenEndpoint(),
		},
		RedirectURL: c.redirectURL(),
		Scopes:      c.scopes(),
	}
}

// oauthCtx routes x/oauth2's internal requests through this module's
// hardened client.
func (c *oauth2Client) oauthCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http.Std())
}

// AcquireOrRefreshAccess makes sure a live token is on hand: a
// present, unexpired, still-active token is kept; an expired one with
// a refresh token is refreshed; otherwise the interactive code flow
// runs.
func (c *oauth2Client) AcquireOrRefreshAccess(ctx context.Context) error {
	tok, err := c.userToken(ctx)
	if err != nil {
		return err
	}

	if tok.Access != "" && !tokenExpired(tok) {
		active, err := c.introspect(ctx, tok.Access)
		if err != nil {
			c.logger.Debug("token introspection unavailable", "host", c.originHost, "error", err)
			return nil
		}
		if active {
			return nil
		}
		c.logger.Info("token reported inactive, renewing", "host", c.originHost)
	}

	if tok.Refresh != "" {
		if err := c.refresh(ctx, tok); err == nil {
			return nil
		} else {
			c.logger.Info("token refresh failed, falling back to authorization",
				"host", c.originHost, "error", err)
		}
	}

	return c.authorize(ctx)
}

// tokenExpired applies the stored expiry and, for JWT-shaped tokens,
// the exp claim, with a safety skew.
func tokenExpired(tok creds.UserToken) bool {
	deadline := time.Now().Add(expirySkew)
	if tok.ExpiresAt > 0 && time.Unix(tok.ExpiresAt, 0).Before(deadline) {
		return true
	}
	if strings.Count(tok.Access, ".") == 2 {
		parser := jwt.NewParser()
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(tok.Access, claims); err == nil {
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(deadline) {
				return true
			}
		}
	}
	return false
}

// introspect asks the origin whether the token is still active.
// Returns an error when the origin advertises no introspection
// endpoint.
func (c *oauth2Client) introspect(ctx context.Context, accessToken string) (bool, error) {
	endpoint := c.desc.IntrospectionEndpoint()
	if endpoint == "" {
		return false, fmt.Errorf("no introspection endpoint for %s", c.originHost)
	}
	cc, err := c.creds.Resolve(ctx, c.originHost)
	if err != nil || !cc.Present() {
		return false, fmt.Errorf("no client credentials for introspection")
	}

	form := url.Values{
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cc.Key, cc.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	body, err := c.http.ReadBody(resp)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("introspection returned %d", resp.StatusCode)
	}
	return gjson.GetBytes(body, "active").Bool(), nil
}

func (c *oauth2Client) refresh(ctx context.Context, tok creds.UserToken) error {
	cc, err := c.resolveClient(ctx, c.RegisterClient)
	if err != nil {
		return err
	}
	src := c.oauthConfig(cc).TokenSource(c.oauthCtx(ctx), &oauth2.Token{
		RefreshToken: tok.Refresh,
	})
	fresh, err := src.Token()
	if err != nil {
		return err
	}
	return c.storeToken(ctx, fresh)
}

// authorize runs the interactive authorization-code flow through the
// callback listener.
func (c *oauth2Client) authorize(ctx context.Context) error {
	if c.deps.Callback == nil {
		return protocol.NewConnError(protocol.StatusAuthenticationError,
			"interactive authorization requires the callback listener")
	}
	cc, err := c.resolveClient(ctx, c.RegisterClient)
	if err != nil {
		return err
	}

	cfg := c.oauthConfig(cc)
	state := uuid.NewString()
	c.promptAuthorize(cfg.AuthCodeURL(state))

	cbRes, err := c.deps.Callback.Await(ctx, state)
	if err != nil {
		return protocol.NewConnError(protocol.StatusAuthenticationError,
			"authorization was not completed: "+err.Error())
	}
	if cbRes.Code == "" {
		return protocol.NewConnError(protocol.StatusAuthenticationError,
			"authorization callback carried no code")
	}

	fresh, err := cfg.Exchange(c.oauthCtx(ctx), cbRes.Code)
	if err != nil {
		return protocol.NewConnError(protocol.StatusAuthenticationError,
			"code exchange failed: "+err.Error())
	}
	return c.storeToken(ctx, fresh)
}

func (c *oauth2Client) storeToken(ctx context.Context, t *oauth2.Token) error {
	tok := creds.UserToken{
		Access:  t.AccessToken,
		Refresh: t.RefreshToken,
	}
	if !t.Expiry.IsZero() {
		tok.ExpiresAt = t.Expiry.Unix()
	}
	if err := c.creds.SaveUserToken(ctx, c.originHost, c.desc.Account, tok); err != nil {
		return err
	}
	c.setToken(tok)
	c.logger.Info("acquired oauth2 access token", "host", c.originHost)
	return nil
}

func (c *oauth2Client) SetUserCredentials(ctx context.Context, tok creds.UserToken) error {
	if tok.Access == "" {
		return protocol.NewConnError(protocol.StatusBadRequest, "access token is required")
	}
	if err := c.creds.SaveUserToken(ctx, c.originHost, c.desc.Account, tok); err != nil {
		return err
	}
	c.setToken(tok)
	return nil
}

// ClearCredentials drops the token, and the client key too when it
// was obtained dynamically, so the next connection re-registers.
func (c *oauth2Client) ClearCredentials(ctx context.Context) error {
	if err := c.creds.ClearUserToken(ctx, c.originHost, c.desc.Account); err != nil {
		return err
	}
	c.setToken(creds.UserToken{})
	cc, err := c.creds.Resolve(ctx, c.originHost)
	if err == nil && cc.Provenance != creds.ProvenanceStatic {
		return c.creds.Clear(ctx, c.originHost)
	}
	return nil
}

func (c *oauth2Client) CredentialsPresent() bool {
	tok, err := c.userToken(context.Background())
	return err == nil && tok.Access != ""
}
