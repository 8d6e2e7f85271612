package token

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	poserrors "github.com/issac1998/pos-relay/internal/errors"
)

// DefaultLifetime applies when the token response has no expires_in
const DefaultLifetime = time.Hour

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	// RefreshSkew is how much validity a cached token must have left to be reused
	RefreshSkew time.Duration
}

// Source hands out bearer tokens
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Cache is a process-wide client-credentials token cache. At most one
// exchange runs at a time; callers arriving during an exchange wait for
// its result.
type Cache struct {
	oauth      clientcredentials.Config
	skew       time.Duration
	httpClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewCache creates a token cache. httpClient may be nil.
func NewCache(config Config, httpClient *http.Client) *Cache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Cache{
		oauth: clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		skew:       config.RefreshSkew,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for expiry checks
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Token returns the cached token while it has more than the refresh
// skew left, otherwise performs one exchange and caches the result.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.expiry.Sub(c.now()) > c.skew {
		return c.token, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Token(ctx)
	if err != nil {
		return "", poserrors.Token("client credentials exchange failed", err)
	}

	c.token = tok.AccessToken
	c.expiry = c.now().Add(lifetime(tok))
	return c.token, nil
}

// lifetime recovers expires_in from the token. oauth2 stamps Expiry
// against the wall clock at exchange time, so the remaining duration is
// rounded back to whole seconds.
func lifetime(tok *oauth2.Token) time.Duration {
	if tok.Expiry.IsZero() {
		return DefaultLifetime
	}
	d := time.Until(tok.Expiry).Round(time.Second)
	if d <= 0 {
		return DefaultLifetime
	}
	return d
}

// Expiry reports when the cached token expires; zero when none is cached
func (c *Cache) Expiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiry
}
