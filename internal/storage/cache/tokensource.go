package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// expirySkew is how long before its expiry a shared token stops being handed out.
const expirySkew = 2 * time.Minute

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns ErrMiss if the key does not exist.
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CachedTokenSource is a read-aside decorator that shares access tokens
// minted by one replica with all the others.
type CachedTokenSource struct {
	source  oauth2.TokenSource
	cache   CacheClient
	key     string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewCachedTokenSource caches tokens from source under a key derived from
// account, which identifies the credential (e.g. the client email).
func NewCachedTokenSource(source oauth2.TokenSource, cache CacheClient, account string, logger *slog.Logger) *CachedTokenSource {
	return &CachedTokenSource{
		source:  source,
		cache:   cache,
		key:     fmt.Sprintf("pushgw:oauth:token:%s", account),
		timeout: 2 * time.Second,
		logger:  logger.With("component", "CachedTokenSource"),
		now:     time.Now,
	}
}

func (s *CachedTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// 1. Try Cache
	var cached oauth2.Token
	err := s.cache.Get(ctx, s.key, &cached)
	if err == nil && s.usable(&cached) {
		return &cached, nil
	}
	if err != nil && !errors.Is(err, ErrMiss) {
		// Redis is an optimization; a failure here falls through to minting.
		s.logger.Warn("Token cache read failed", "err", err)
	}

	// 2. Mint a fresh one
	fresh, err := s.source.Token()
	if err != nil {
		return nil, err
	}

	// 3. Populate Cache (Fire and Forget)
	ttl := fresh.Expiry.Sub(s.now()) - expirySkew
	if !fresh.Expiry.IsZero() && ttl > 0 {
		if err := s.cache.Set(ctx, s.key, fresh, ttl); err != nil {
			s.logger.Warn("Token cache write failed", "err", err)
		}
	}
	return fresh, nil
}

func (s *CachedTokenSource) usable(t *oauth2.Token) bool {
	if t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || t.Expiry.Sub(s.now()) > expirySkew
}
