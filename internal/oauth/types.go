package oauth

import "time"

// Client is a registered OAuth2 client, loaded from static configuration.
// The voice-assistant platform is the only expected client, but the
// allow-list supports several.
type Client struct {
	ID           string   `json:"id"`
	Secret       string   `json:"-"` // never serialised
	RedirectURIs []string `json:"redirect_uris"`
}

// AllowsRedirect checks the redirect target against the client's allow-list.
// Exact string match only; no prefix or wildcard matching.
func (c Client) AllowsRedirect(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

// AuthorizationGrant binds a client, scope, and redirect target to an
// opaque single-use authorization code. The raw code is returned to the
// client once; only its hash is stored.
//
// Lifecycle: issued → redeemed | expired. Redemption invalidates the code
// immediately and reuse fails.
type AuthorizationGrant struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scope       string    `json:"scope"`
	CodeHash    string    `json:"-"` // never serialised
	Redeemed    bool      `json:"redeemed"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// RefreshToken is the stored half of a token pair. The raw token lives
// only with the client; the hash is persisted. AccessJTI links the refresh
// token to the access token issued alongside it so revocation and rotation
// can invalidate both atomically.
//
// Lifecycle: active → rotated (new pair issued, old pair invalidated) |
// revoked | expired.
type RefreshToken struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope"`
	TokenHash string    `json:"-"` // never serialised
	AccessJTI string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is what a successful exchange or refresh returns to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
