package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// assertionTTL is the lifetime of the signed service-credential assertion.
// Short by design: the assertion only has to survive one token request.
const assertionTTL = 5 * time.Minute

// tokenExpiryMargin is subtracted from a token's lifetime before caching
// so a token is never used within a breath of its expiry.
const tokenExpiryMargin = 30 * time.Second

// maxTokenResponseSize bounds the token endpoint response body.
const maxTokenResponseSize = 64 * 1024

// TokenSource supplies bearer tokens for the registry push.
type TokenSource interface {
	// Token returns a valid bearer token, exchanging the service
	// credential if no cached token remains valid.
	Token(ctx context.Context) (string, error)

	// Invalidate discards the cached token, forcing re-acquisition on
	// the next call. Used after the registry rejects a push with 4xx.
	Invalidate()
}

// serviceTokenSource exchanges a long-lived service credential for
// short-lived bearer tokens. The credential never leaves the process;
// each exchange sends a freshly signed assertion instead.
type serviceTokenSource struct {
	tokenURL string
	issuer   string
	key      string
	client   *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// newServiceTokenSource builds a token source from the configured service
// account.
func newServiceTokenSource(tokenURL, issuer, key string, client *http.Client) *serviceTokenSource {
	return &serviceTokenSource{
		tokenURL: tokenURL,
		issuer:   issuer,
		key:      key,
		client:   client,
	}
}

// tokenResponse is the token endpoint's success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *serviceTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && time.Now().Before(s.expires) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	assertion, err := s.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %w", ErrPushFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: reading token response: %w", ErrPushFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint status %d", ErrPushFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %w", ErrPushFailed, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrPushFailed)
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime > tokenExpiryMargin {
		lifetime -= tokenExpiryMargin
	}

	s.mu.Lock()
	s.token = tr.AccessToken
	s.expires = time.Now().Add(lifetime)
	s.mu.Unlock()

	return tr.AccessToken, nil
}

func (s *serviceTokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expires = time.Time{}
	s.mu.Unlock()
}

// signAssertion builds the short-lived HS256 assertion carrying the
// service identity.
func (s *serviceTokenSource) signAssertion() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.issuer,
		Audience:  jwt.ClaimStrings{s.tokenURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.key))
	if err != nil {
		return "", fmt.Errorf("signing service assertion: %w", err)
	}
	return signed, nil
}
