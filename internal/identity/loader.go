package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// EnrollmentSource is the store of record for enrolled identities.
type EnrollmentSource interface {
	LoadAll(ctx context.Context) ([]domain.EnrolledIdentity, error)
	LoadIdentity(ctx context.Context, identityID string) (*domain.EnrolledIdentity, error)
}

// Loader keeps a Store in sync with the enrollment source. The whole
// population is reloaded at startup and on demand; single identities are
// refreshed on enrollment change notifications.
type Loader struct {
	store  *Store
	source EnrollmentSource
	logger *slog.Logger
}

func NewLoader(store *Store, source EnrollmentSource, logger *slog.Logger) *Loader {
	return &Loader{
		store:  store,
		source: source,
		logger: logger.With(slog.String("component", "identity_loader")),
	}
}

// Reload replaces the store contents with the source's current population.
// Embeddings rejected by validation are logged and skipped.
func (l *Loader) Reload(ctx context.Context) (int, error) {
	identities, err := l.source.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load enrollments: %w", err)
	}

	if err := l.store.Replace(identities); err != nil {
		l.logger.Warn("skipped invalid embeddings during reload", slog.Any("error", err))
	}

	l.logger.Info("identities reloaded",
		slog.Int("identities", l.store.Identities()),
		slog.Int("embeddings", l.store.Embeddings()),
	)

	return l.store.Identities(), nil
}

// Refresh re-reads one identity. A missing identity is removed from the store.
func (l *Loader) Refresh(ctx context.Context, identityID string) error {
	identity, err := l.source.LoadIdentity(ctx, identityID)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		if l.store.RemoveIdentity(identityID) {
			l.logger.Info("identity removed", slog.String("identity_id", identityID))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load identity %s: %w", identityID, err)
	}

	if err := l.store.PutIdentity(*identity); err != nil {
		return fmt.Errorf("refresh identity %s: %w", identityID, err)
	}

	l.logger.Info("identity refreshed",
		slog.String("identity_id", identityID),
		slog.Int("embeddings", len(identity.Embeddings)),
	)
	return nil
}
