// Package creds resolves and persists OAuth client credentials and
// user tokens for origin hosts. A statically bundled key set wins over
// a previously cached dynamic one; registration fills the gap and the
// result is written through to the persistence driver.
package creds

// Provenance records how a client key pair was obtained.
type Provenance int

const (
	// ProvenanceDynamic marks a pair that still has to be (re)registered.
	ProvenanceDynamic Provenance = iota
	// ProvenanceStatic marks a pair bundled in configuration.
	ProvenanceStatic
	// ProvenanceCachedDynamic marks a registered pair loaded back from storage.
	ProvenanceCachedDynamic
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceStatic:
		return "static"
	case ProvenanceCachedDynamic:
		return "cached_dynamic"
	default:
		return "dynamic"
	}
}

// ParseProvenance is the inverse of Provenance.String. Unknown values
// fall back to dynamic, forcing re-registration rather than trusting a
// corrupted record.
func ParseProvenance(s string) Provenance {
	switch s {
	case "static":
		return ProvenanceStatic
	case "cached_dynamic":
		return ProvenanceCachedDynamic
	default:
		return ProvenanceDynamic
	}
}

// ClientCredentials is an OAuth client id/secret pair with provenance.
type ClientCredentials struct {
	Key        string
	Secret     string
	Provenance Provenance
}

// Present reports whether both halves of the pair are non-empty.
func (c ClientCredentials) Present() bool {
	return c.Key != "" && c.Secret != ""
}

// UserToken is the per-account access credential for one origin.
// For OAuth1 the Secret field holds the token secret; for OAuth2 it is
// empty and Refresh may carry a refresh token.
type UserToken struct {
	Access    string
	Secret    string
	Refresh   string
	ExpiresAt int64 // unix seconds, zero when unknown
}

// Present reports whether an access credential exists.
func (t UserToken) Present() bool {
	return t.Access != ""
}
