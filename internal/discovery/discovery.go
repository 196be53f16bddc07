// Package discovery fetches RFC 8414 authorization-server metadata
// from origins and caches the result. A missing document is not an
// error: older origins predate the well-known endpoint and the
// strategies fall back to per-flavor default paths.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openfedi/fedclient-go/internal/origin"
	"github.com/openfedi/fedclient-go/internal/platform/cache"
	httpclient "github.com/openfedi/fedclient-go/internal/platform/http/client"
	"github.com/openfedi/fedclient-go/internal/platform/logutil"
)

// WellKnownPath is the RFC 8414 metadata path.
const WellKnownPath = "/.well-known/oauth-authorization-server"

// absentTTL is how long a confirmed "publishes no metadata" answer is
// remembered. Shorter than the positive TTL so a newly deployed
// document is picked up reasonably soon.
const absentTTL = 5 * time.Minute

// absentSentinel is cached under the metadata key for origins that
// answered 404 on the well-known path.
var absentSentinel = []byte("absent")

// Client fetches and caches authorization-server metadata documents.
type Client struct {
	httpClient *httpclient.Client
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewClient creates a discovery client. Nil cache is replaced with the
// default in-memory cache.
func NewClient(httpClient *httpclient.Client, c cache.Cache, logger *slog.Logger) *Client {
	if c == nil {
		c = cache.NewDefault()
	}
	return &Client{
		httpClient: httpClient,
		cache:      c,
		cacheTTL:   cache.TTLMetadata,
		logger:     logutil.NoopIfNil(logger),
	}
}

// Discover fetches the metadata document for an origin and stores it
// on the descriptor. Returns (nil, nil) when the origin does not
// publish one.
func (c *Client) Discover(ctx context.Context, desc *origin.Descriptor) (*origin.Metadata, error) {
	if m := desc.Metadata(); m != nil {
		return m, nil
	}

	baseURL := strings.TrimSuffix(desc.URL, "/")
	cacheKey := "authmeta:" + baseURL
	if data, err := c.cache.Get(ctx, cacheKey); err == nil {
		if bytes.Equal(data, absentSentinel) {
			return nil, nil
		}
		var meta origin.Metadata
		if err := json.Unmarshal(data, &meta); err == nil {
			desc.SetMetadata(&meta)
			return &meta, nil
		}
	}

	meta, err := c.fetch(ctx, baseURL+WellKnownPath)
	if err != nil {
		return nil, fmt.Errorf("failed to discover auth metadata at %s: %w", baseURL, err)
	}
	if meta == nil {
		c.logger.Debug("origin publishes no auth metadata", "origin", baseURL)
		c.cache.Set(ctx, cacheKey, absentSentinel, absentTTL)
		return nil, nil
	}

	if data, err := json.Marshal(meta); err == nil {
		c.cache.Set(ctx, cacheKey, data, c.cacheTTL)
	}
	desc.SetMetadata(meta)

	return meta, nil
}

func (c *Client) fetch(ctx context.Context, metaURL string) (*origin.Metadata, error) {
	data, resp, err := c.httpClient.GetJSON(ctx, metaURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata endpoint returned status %d", resp.StatusCode)
	}

	var meta origin.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	if meta.AuthorizationEndpoint == "" && meta.TokenEndpoint == "" {
		return nil, fmt.Errorf("metadata document has no endpoints")
	}

	return &meta, nil
}
