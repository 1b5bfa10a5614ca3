package oauth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/willbeckett/homelink-core/internal/infrastructure/config"
)

// Authority issues and validates the credentials gating the fulfillment
// endpoint: authorization codes, access tokens, and refresh tokens for the
// account-linking flow.
//
// Refresh policy: this implementation rotates refresh tokens. Every
// successful refresh revokes the presented token and issues a replacement;
// reuse of a rotated token fails with ErrInvalidGrant.
//
// Access tokens are HS256 JWTs validated by signature, so revocation needs
// help: each refresh token row remembers the jti of the access token minted
// with it, and rotation or revocation adds that jti to an in-memory
// denylist checked by Validate. Entries expire with the token itself, so
// the denylist stays small. A process restart clears it, which bounds the
// exposure to one access-token TTL.
//
// Thread Safety: all methods are safe for concurrent use. Grants and
// tokens are serialized per entry by the repositories; the denylist has
// its own lock.
type Authority struct {
	clients map[string]Client
	grants  GrantRepository
	tokens  TokenRepository

	secret     string
	grantTTL   time.Duration
	accessTTL  time.Duration
	refreshTTL time.Duration

	denyMu sync.Mutex
	denied map[string]time.Time // jti -> access token expiry
}

// NewAuthority builds the credential authority from static configuration.
func NewAuthority(cfg config.OAuthConfig, grants GrantRepository, tokens TokenRepository) *Authority {
	clients := make(map[string]Client, len(cfg.Clients))
	for _, cc := range cfg.Clients {
		uris := make([]string, len(cc.RedirectURIs))
		copy(uris, cc.RedirectURIs)
		clients[cc.ID] = Client{
			ID:           cc.ID,
			Secret:       cc.Secret,
			RedirectURIs: uris,
		}
	}

	return &Authority{
		clients:    clients,
		grants:     grants,
		tokens:     tokens,
		secret:     cfg.Secret,
		grantTTL:   time.Duration(cfg.GrantTTL) * time.Minute,
		accessTTL:  time.Duration(cfg.AccessTokenTTL) * time.Minute,
		refreshTTL: time.Duration(cfg.RefreshTokenTTL) * time.Minute,
	}
}

// Authorize validates the client and redirect target against the static
// allow-list and, on success, creates an AuthorizationGrant and returns
// its raw code for the redirect.
func (a *Authority) Authorize(ctx context.Context, clientID, redirectURI, scope string) (string, error) {
	client, ok := a.clients[clientID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidClient, clientID)
	}
	if !client.AllowsRedirect(redirectURI) {
		return "", fmt.Errorf("%w: %s", ErrInvalidRedirect, redirectURI)
	}

	code, err := GenerateAuthCode()
	if err != nil {
		return "", err
	}

	grant := &AuthorizationGrant{
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scope:       scope,
		CodeHash:    HashToken(code),
		ExpiresAt:   time.Now().Add(a.grantTTL),
	}
	if err := a.grants.Create(ctx, grant); err != nil {
		return "", err
	}

	return code, nil
}

// Exchange redeems an authorization code for a token pair.
//
// The code is invalidated before the pair is issued; a second exchange
// with the same code fails with ErrInvalidGrant no matter how the first
// attempt ended.
func (a *Authority) Exchange(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*TokenPair, error) {
	if err := a.authenticateClient(clientID, clientSecret); err != nil {
		return nil, err
	}

	grant, err := a.grants.Redeem(ctx, HashToken(code), clientID, redirectURI)
	if err != nil {
		return nil, err
	}

	return a.issuePair(ctx, grant.ClientID, grant.Scope)
}

// Refresh exchanges a refresh token for a new token pair.
//
// The presented token is rotated: it is revoked atomically with the
// creation of its replacement, and the access token issued alongside it
// is denylisted. Reuse of the old refresh token fails with ErrInvalidGrant.
func (a *Authority) Refresh(ctx context.Context, rawRefresh, clientID, clientSecret string) (*TokenPair, error) {
	if err := a.authenticateClient(clientID, clientSecret); err != nil {
		return nil, err
	}

	stored, err := a.tokens.GetByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		return nil, err
	}
	if stored.Revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidGrant)
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidGrant)
	}
	if stored.ClientID != clientID {
		return nil, fmt.Errorf("%w: client mismatch", ErrInvalidGrant)
	}

	access, jti, err := GenerateAccessToken(stored.ClientID, stored.Scope, a.secret, a.accessTTL)
	if err != nil {
		return nil, err
	}
	rawNew, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	replacement := &RefreshToken{
		ClientID:  stored.ClientID,
		Scope:     stored.Scope,
		TokenHash: HashToken(rawNew),
		AccessJTI: jti,
		ExpiresAt: time.Now().Add(a.refreshTTL),
	}
	if err := a.tokens.Rotate(ctx, stored.ID, replacement); err != nil {
		return nil, err
	}

	// The old pair is dead: denylist the access token minted with the
	// rotated refresh token.
	a.denyJTI(stored.AccessJTI)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawNew,
		TokenType:    "Bearer",
		ExpiresIn:    int(a.accessTTL.Seconds()),
	}, nil
}

// Validate checks an access token's signature, expiry, and revocation
// status, returning the bound client and scope.
func (a *Authority) Validate(accessToken string) (*AccessClaims, error) {
	claims, err := ParseAccessToken(accessToken, a.secret)
	if err != nil {
		return nil, err
	}

	if a.isDenied(claims.ID) {
		return nil, fmt.Errorf("%w: token revoked", ErrUnauthorized)
	}

	return claims, nil
}

// Revoke invalidates a token pair given its refresh token: the refresh
// token is revoked and its paired access token denylisted. Revoking an
// already-revoked token is a no-op.
func (a *Authority) Revoke(ctx context.Context, rawRefresh string) error {
	stored, err := a.tokens.GetByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		return err
	}

	if err := a.tokens.Revoke(ctx, stored.ID); err != nil {
		return err
	}
	a.denyJTI(stored.AccessJTI)

	return nil
}

// authenticateClient verifies the client ID and secret against the static
// allow-list. The secret comparison is constant-time.
func (a *Authority) authenticateClient(clientID, clientSecret string) error {
	client, ok := a.clients[clientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidClient, clientID)
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(clientSecret)) != 1 {
		return fmt.Errorf("%w: bad secret", ErrInvalidClient)
	}
	return nil
}

// issuePair mints an access token and refresh token bound to each other.
func (a *Authority) issuePair(ctx context.Context, clientID, scope string) (*TokenPair, error) {
	access, jti, err := GenerateAccessToken(clientID, scope, a.secret, a.accessTTL)
	if err != nil {
		return nil, err
	}
	rawRefresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	token := &RefreshToken{
		ClientID:  clientID,
		Scope:     scope,
		TokenHash: HashToken(rawRefresh),
		AccessJTI: jti,
		ExpiresAt: time.Now().Add(a.refreshTTL),
	}
	if err := a.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(a.accessTTL.Seconds()),
	}, nil
}

// denyJTI adds an access token id to the denylist and prunes expired
// entries while holding the lock.
func (a *Authority) denyJTI(jti string) {
	if jti == "" {
		return
	}

	now := time.Now()

	a.denyMu.Lock()
	defer a.denyMu.Unlock()

	if a.denied == nil {
		a.denied = make(map[string]time.Time)
	}
	for id, exp := range a.denied {
		if now.After(exp) {
			delete(a.denied, id)
		}
	}
	a.denied[jti] = now.Add(a.accessTTL)
}

func (a *Authority) isDenied(jti string) bool {
	a.denyMu.Lock()
	defer a.denyMu.Unlock()
	_, denied := a.denied[jti]
	return denied
}
