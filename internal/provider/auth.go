package provider

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Authenticator supplies bearer tokens for a source.
type Authenticator interface {
	// Token returns a current access token, fetching one if needed.
	Token(ctx context.Context) (string, error)

	// Refresh discards the current token and fetches a new one.
	Refresh(ctx context.Context) error
}

// ClientCredentials is an Authenticator for the OAuth2 client credentials
// grant. Tokens are cached until expiry or until Refresh is called.
type ClientCredentials struct {
	provider ProviderName
	cfg      clientcredentials.Config
	hc       *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewClientCredentials creates an authenticator. hc may be nil.
func NewClientCredentials(provider ProviderName, tokenURL, clientID, clientSecret string, hc *http.Client) *ClientCredentials {
	return &ClientCredentials{
		provider: provider,
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		hc: hc,
	}
}

// Configured reports whether credentials are present.
func (a *ClientCredentials) Configured() bool {
	return a.cfg.ClientID != "" && a.cfg.ClientSecret != ""
}

// Token implements Authenticator.
func (a *ClientCredentials) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token.Valid() {
		return a.token.AccessToken, nil
	}
	if err := a.fetchLocked(ctx); err != nil {
		return "", err
	}
	return a.token.AccessToken, nil
}

// Refresh implements Authenticator.
func (a *ClientCredentials) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = nil
	return a.fetchLocked(ctx)
}

func (a *ClientCredentials) fetchLocked(ctx context.Context) error {
	if !a.Configured() {
		return &ErrAuthRequired{Provider: a.provider}
	}
	if a.hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.hc)
	}
	tok, err := a.cfg.Token(ctx)
	if err != nil {
		return &ErrProviderUnavailable{Provider: a.provider, Cause: err}
	}
	a.token = tok
	return nil
}
