// Package auth provides the cloud API token provider shared by the command
// dispatcher and the telemetry stream.
package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Provider issues bearer tokens for the target cloud API using the OAuth2
// client-credentials flow. Tokens are cached until expiry; a forced refresh
// discards the cache, which is how callers recover from credential expiry
// observed mid-session.
type Provider struct {
	cfg clientcredentials.Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

// New creates a Provider for the given token endpoint and client credentials.
func New(tokenURL, clientID, clientSecret string) *Provider {
	return &Provider{
		cfg: clientcredentials.Config{
			TokenURL:     tokenURL,
			ClientID:     clientID,
			ClientSecret: clientSecret,
		},
	}
}

// EnsureToken returns a valid access token. With force set, the cached token
// source is discarded and a fresh token is fetched from the token endpoint.
func (p *Provider) EnsureToken(ctx context.Context, force bool) (string, error) {
	p.mu.Lock()
	if force || p.source == nil {
		p.source = p.cfg.TokenSource(ctx)
	}
	source := p.source
	p.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("auth: token: %w", err)
	}
	return tok.AccessToken, nil
}
