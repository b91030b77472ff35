package token

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// saveTimeout bounds a single Save triggered by a refresh.
const saveTimeout = 5 * time.Second

// Logger defines the logging interface used by PersistingSource.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PersistingSource wraps a TokenSource and saves every new token it returns.
// A failed save is logged; the fresh token is still handed to the caller.
type PersistingSource struct {
	src    oauth2.TokenSource
	store  Store
	logger Logger

	mu   sync.Mutex
	last string // access token most recently saved or loaded
}

// NewPersistingSource wraps src. initial is the token src was seeded with,
// so it is not written back on first use; it may be nil.
func NewPersistingSource(src oauth2.TokenSource, store Store, initial *oauth2.Token) *PersistingSource {
	p := &PersistingSource{src: src, store: store, logger: noopLogger{}}
	if initial != nil {
		p.last = initial.AccessToken
	}
	return p
}

// SetLogger sets the logger for save outcomes.
func (p *PersistingSource) SetLogger(logger Logger) {
	p.logger = logger
}

// Token implements oauth2.TokenSource.
func (p *PersistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last {
		return tok, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := p.store.Save(ctx, tok); err != nil {
		p.logger.Error("failed to persist refreshed upstream token", "error", err)
		return tok, nil
	}
	p.last = tok.AccessToken
	p.logger.Info("persisted refreshed upstream token", "expiry", tok.Expiry)
	return tok, nil
}
