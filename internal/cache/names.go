// Package cache keeps identity display names in memory for overlay rendering.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const (
	DefaultTTL = 10 * time.Minute
	// misses are cached for less time so a new enrollment shows up quickly
	missTTL = 30 * time.Second
	// failed lookups render as the ID for a few seconds before retrying
	failureTTL = 5 * time.Second
)

// NameSource resolves an identity ID to its display name.
type NameSource interface {
	DisplayName(ctx context.Context, identityID string) (string, error)
}

// Names is a read-through display-name cache. Lookups never fail; an identity
// the source cannot resolve is shown by its ID.
type Names struct {
	source NameSource
	cache  *gocache.Cache
	logger *slog.Logger
}

func NewNames(source NameSource, ttl time.Duration, logger *slog.Logger) *Names {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Names{
		source: source,
		cache:  gocache.New(ttl, ttl*2),
		logger: logger.With("component", "names"),
	}
}

// Name returns the display name for identityID. An empty ID is an unmatched
// face and renders as domain.UnknownIdentity. The lookup is bounded by ctx.
func (n *Names) Name(ctx context.Context, identityID string) string {
	if identityID == "" {
		return domain.UnknownIdentity
	}
	if cached, found := n.cache.Get(identityID); found {
		return cached.(string)
	}
	if n.source == nil {
		return identityID
	}

	name, err := n.source.DisplayName(ctx, identityID)
	switch {
	case err == nil && name != "":
		n.cache.Set(identityID, name, gocache.DefaultExpiration)
		return name
	case err != nil && !errors.Is(err, domain.ErrIdentityNotFound):
		n.logger.Warn("display name lookup failed",
			slog.String("identity_id", identityID),
			slog.Any("error", err),
		)
		n.cache.Set(identityID, identityID, failureTTL)
		return identityID
	}

	n.cache.Set(identityID, identityID, missTTL)
	return identityID
}

// Forget drops a cached name after the identity changed.
func (n *Names) Forget(identityID string) {
	n.cache.Delete(identityID)
}

// Flush drops every cached name.
func (n *Names) Flush() {
	n.cache.Flush()
}

func (n *Names) Len() int {
	return n.cache.ItemCount()
}
