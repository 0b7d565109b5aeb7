// Package session owns the till's session token: one opaque id reused by every
// transaction request until the session is rotated.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"till-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists the token so it survives a restart of the till process.
type Store interface {
	LoadToken(ctx context.Context, tillID string) (string, error)
	SaveToken(ctx context.Context, tillID, token string) error
	ClearToken(ctx context.Context, tillID string) error
}

// Provider hands out the current session token, creating it on first use.
// Current and Expire never wait on the store.
type Provider struct {
	io     sync.Mutex // serializes store access
	mu     sync.Mutex // guards token and expired; never held across store calls
	tillID string
	store  Store
	token  string
	// expired is set between Expire and the next token being created; the
	// store may still hold the old token during that window.
	expired bool
	now     func() time.Time
	logger  *zap.Logger
}

// NewProvider creates a provider for one till backed by store.
func NewProvider(tillID string, store Store) *Provider {
	return &Provider{
		tillID: tillID,
		store:  store,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// GetOrCreateSessionToken returns the cached token, falling back to the store
// and finally generating a new one. Store failures are logged and never
// surface: the in-memory token stays authoritative for this process.
func (p *Provider) GetOrCreateSessionToken(ctx context.Context) string {
	if token := p.Current(); token != "" {
		return token
	}

	p.io.Lock()
	defer p.io.Unlock()

	p.mu.Lock()
	if p.token != "" {
		token := p.token
		p.mu.Unlock()
		return token
	}
	expired := p.expired
	p.mu.Unlock()

	if !expired {
		stored, err := p.store.LoadToken(ctx, p.tillID)
		if err != nil {
			p.logger.Warn("Failed to load session token", zap.Error(err))
		}
		if stored != "" {
			p.mu.Lock()
			if p.token == "" && !p.expired {
				p.token = stored
			}
			token := p.token
			p.mu.Unlock()
			if token != "" {
				return token
			}
		}
	}

	token := NewToken(p.now())
	if err := p.store.SaveToken(ctx, p.tillID, token); err != nil {
		p.logger.Warn("Failed to persist session token",
			zap.String("session_id", token),
			zap.Error(err))
	}

	p.mu.Lock()
	p.token = token
	p.expired = false
	p.mu.Unlock()

	p.logger.Info("Session started", zap.String("session_id", token))
	return token
}

// Current returns the token without creating one; empty if none exists yet.
func (p *Provider) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// Expire drops the in-memory token so the next request starts a fresh
// session. The stored token stays until ClearExpired runs.
func (p *Provider) Expire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expired = true
}

// ClearExpired removes the stored token left behind by Expire. It does nothing
// once a fresh token has been created.
func (p *Provider) ClearExpired(ctx context.Context) {
	p.io.Lock()
	defer p.io.Unlock()

	p.mu.Lock()
	expired := p.expired
	p.mu.Unlock()
	if !expired {
		return
	}

	if err := p.store.ClearToken(ctx, p.tillID); err != nil {
		p.logger.Warn("Failed to clear session token", zap.Error(err))
	}
}

// Rotate expires the token and clears it from the store.
func (p *Provider) Rotate(ctx context.Context) {
	p.Expire()
	p.ClearExpired(ctx)
}

// NewToken builds a token from a random component and a millisecond timestamp.
func NewToken(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("txn_%s_%d", random, now.UnixMilli())
}
