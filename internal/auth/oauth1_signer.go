package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// oauth1Signer produces RFC 5849 HMAC-SHA1 Authorization headers. An
// empty token signs the two-legged form.
type oauth1Signer struct {
	consumerKey    string
	consumerSecret string
	token          string
	tokenSecret    string

	// now and nonce are swappable for tests.
	now   func() time.Time
	nonce func() string
}

func newOAuth1Signer(consumerKey, consumerSecret, token, tokenSecret string) oauth1Signer {
	return oauth1Signer{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		token:          token,
		tokenSecret:    tokenSecret,
		now:            time.Now,
		nonce:          func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// sign computes the signature over the request method, base URI and
// parameters, and sets the Authorization header. extra carries
// protocol parameters such as oauth_callback or oauth_verifier that
// belong in both the signature and the header.
func (s oauth1Signer) sign(req *http.Request, extra url.Values) error {
	oauthParams := url.Values{}
	oauthParams.Set("oauth_consumer_key", s.consumerKey)
	oauthParams.Set("oauth_nonce", s.nonce())
	oauthParams.Set("oauth_signature_method", "HMAC-SHA1")
	oauthParams.Set("oauth_timestamp", strconv.FormatInt(s.now().Unix(), 10))
	oauthParams.Set("oauth_version", "1.0")
	if s.token != "" {
		oauthParams.Set("oauth_token", s.token)
	}
	for k, vs := range extra {
		for _, v := range vs {
			oauthParams.Set(k, v)
		}
	}

	sig, err := s.signature(req, oauthParams)
	if err != nil {
		return err
	}
	oauthParams.Set("oauth_signature", sig)

	req.Header.Set("Authorization", authorizationHeader(oauthParams))
	return nil
}

func (s oauth1Signer) signature(req *http.Request, oauthParams url.Values) (string, error) {
	// All parameters: protocol params plus the query string.
	params := make([]string, 0, 8)
	collect := func(vals url.Values) {
		for k, vs := range vals {
			for _, v := range vs {
				params = append(params, percentEncode(k)+"="+percentEncode(v))
			}
		}
	}
	collect(oauthParams)
	collect(req.URL.Query())
	sort.Strings(params)

	baseString := strings.Join([]string{
		strings.ToUpper(req.Method),
		percentEncode(baseURI(req.URL)),
		percentEncode(strings.Join(params, "&")),
	}, "&")

	key := percentEncode(s.consumerSecret) + "&" + percentEncode(s.tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// baseURI is scheme://host/path with default ports stripped and no
// query or fragment.
func baseURI(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	} else if scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}
	return scheme + "://" + host + u.EscapedPath()
}

func authorizationHeader(oauthParams url.Values) string {
	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", percentEncode(k), percentEncode(oauthParams.Get(k))))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// percentEncode implements the RFC 5849 variant: only unreserved
// characters stay literal, space becomes %20.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
