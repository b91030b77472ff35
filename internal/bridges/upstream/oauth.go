package upstream

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/nerrad567/whep-gateway/internal/token"
)

// OAuthConfig describes the upstream token endpoint.
type OAuthConfig struct {
	ClientID string
	TokenURL string
	Timeout  time.Duration // bounds each token refresh call
}

// NewOAuthHTTPClient returns an HTTP client that attaches initial as a
// bearer token, refreshes it through the token endpoint when it expires,
// and saves each refreshed token to store.
//
// ctx only carries the HTTP client used for refresh calls; it does not
// bound the returned client's lifetime. The returned client has no overall
// timeout; Client applies per-call bounds itself.
func NewOAuthHTTPClient(ctx context.Context, cfg OAuthConfig, initial *oauth2.Token, store token.Store, logger token.Logger) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if _, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); !ok {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	}

	oc := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	persisting := token.NewPersistingSource(oc.TokenSource(ctx, initial), store, initial)
	if logger != nil {
		persisting.SetLogger(logger)
	}

	return oauth2.NewClient(ctx, persisting)
}
