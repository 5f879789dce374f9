// Package identity holds the enrolled face embeddings and matches live faces
// against them.
package identity

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// DefaultThreshold is the minimum cosine similarity accepted as a match.
const DefaultThreshold = 0.4

// tieEpsilon is the score difference under which two candidates are
// considered equal; the lower identity ID then wins.
const tieEpsilon = 1e-9

type embedding struct {
	identityID string
	vector     []float64 // unit length
}

// snapshot is immutable once published.
type snapshot struct {
	embeddings []embedding
	identities map[string]int // identity -> embedding count
}

var emptySnapshot = &snapshot{identities: map[string]int{}}

// Store is a copy-on-write embedding index. Match reads the current snapshot
// without locking; writers serialize on mu and publish a new snapshot.
type Store struct {
	dimension int
	threshold float64

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

type Option func(*Store)

// WithDimension overrides the embedding length. Production uses
// domain.EmbeddingDimension.
func WithDimension(n int) Option {
	return func(s *Store) {
		s.dimension = n
	}
}

func NewStore(threshold float64, opts ...Option) *Store {
	s := &Store{
		dimension: domain.EmbeddingDimension,
		threshold: threshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(emptySnapshot)
	return s
}

func (s *Store) Threshold() float64 { return s.threshold }

func (s *Store) validate(identityID string, vector []float64) ([]float64, error) {
	if identityID == "" {
		return nil, domain.ErrInvalidEmbedding.WithError(errors.New("identity id is required"))
	}
	if len(vector) != s.dimension {
		return nil, domain.ErrInvalidEmbedding.WithError(
			fmt.Errorf("identity %s: got %d dimensions, want %d", identityID, len(vector), s.dimension))
	}
	unit, ok := normalize(vector)
	if !ok {
		return nil, domain.ErrInvalidEmbedding.WithError(
			fmt.Errorf("identity %s: zero-norm or non-finite vector", identityID))
	}
	return unit, nil
}

// AddEmbedding attaches one more embedding to an identity, creating the
// identity if needed. Vectors with the wrong dimensionality are rejected.
func (s *Store) AddEmbedding(identityID string, vector []float64) error {
	unit, err := s.validate(identityID, vector)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next := &snapshot{
		embeddings: make([]embedding, len(cur.embeddings), len(cur.embeddings)+1),
		identities: make(map[string]int, len(cur.identities)+1),
	}
	copy(next.embeddings, cur.embeddings)
	for id, n := range cur.identities {
		next.identities[id] = n
	}
	next.embeddings = append(next.embeddings, embedding{identityID: identityID, vector: unit})
	next.identities[identityID]++

	s.snap.Store(next)
	return nil
}

// PutIdentity replaces every embedding of an identity in a single swap.
// Nothing changes when any vector is invalid.
func (s *Store) PutIdentity(identity domain.EnrolledIdentity) error {
	units := make([][]float64, 0, len(identity.Embeddings))
	for _, v := range identity.Embeddings {
		unit, err := s.validate(identity.ID, v)
		if err != nil {
			return err
		}
		units = append(units, unit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next := withoutIdentity(cur, identity.ID)
	for _, unit := range units {
		next.embeddings = append(next.embeddings, embedding{identityID: identity.ID, vector: unit})
	}
	if len(units) > 0 {
		next.identities[identity.ID] = len(units)
	}

	s.snap.Store(next)
	return nil
}

// RemoveIdentity drops an identity and all of its embeddings. It reports
// whether the identity existed.
func (s *Store) RemoveIdentity(identityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	if _, ok := cur.identities[identityID]; !ok {
		return false
	}

	s.snap.Store(withoutIdentity(cur, identityID))
	return true
}

func withoutIdentity(cur *snapshot, identityID string) *snapshot {
	next := &snapshot{
		embeddings: make([]embedding, 0, len(cur.embeddings)),
		identities: make(map[string]int, len(cur.identities)),
	}
	for _, e := range cur.embeddings {
		if e.identityID != identityID {
			next.embeddings = append(next.embeddings, e)
		}
	}
	for id, n := range cur.identities {
		if id != identityID {
			next.identities[id] = n
		}
	}
	return next
}

// Replace swaps the whole population. Invalid embeddings are skipped and
// reported in the returned error; valid ones are still loaded.
func (s *Store) Replace(identities []domain.EnrolledIdentity) error {
	next := &snapshot{identities: make(map[string]int, len(identities))}
	var errs []error

	for _, identity := range identities {
		for _, v := range identity.Embeddings {
			unit, err := s.validate(identity.ID, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.embeddings = append(next.embeddings, embedding{identityID: identity.ID, vector: unit})
			next.identities[identity.ID]++
		}
	}

	s.mu.Lock()
	s.snap.Store(next)
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Match compares vector against every stored embedding. The returned score
// is the best similarity found even when it is below the threshold, so
// callers can surface near misses; IdentityID is only set on a match.
// Equal best scores resolve to the lexicographically lowest identity ID.
func (s *Store) Match(vector []float64) (domain.FaceMatch, bool) {
	if len(vector) != s.dimension {
		return domain.FaceMatch{}, false
	}
	query, ok := normalize(vector)
	if !ok {
		return domain.FaceMatch{}, false
	}

	snap := s.snap.Load()
	if len(snap.embeddings) == 0 {
		return domain.FaceMatch{}, false
	}

	bestScore := math.Inf(-1)
	bestID := ""
	for _, e := range snap.embeddings {
		score := dot(query, e.vector)
		switch {
		case score > bestScore+tieEpsilon:
			bestScore, bestID = score, e.identityID
		case math.Abs(score-bestScore) <= tieEpsilon && e.identityID < bestID:
			bestScore, bestID = math.Max(score, bestScore), e.identityID
		}
	}

	if bestScore < s.threshold {
		return domain.FaceMatch{Score: bestScore}, false
	}
	return domain.FaceMatch{IdentityID: bestID, Score: bestScore}, true
}

// Identities returns the number of enrolled identities.
func (s *Store) Identities() int {
	return len(s.snap.Load().identities)
}

// Embeddings returns the number of stored embeddings.
func (s *Store) Embeddings() int {
	return len(s.snap.Load().embeddings)
}

// Has reports whether an identity is enrolled.
func (s *Store) Has(identityID string) bool {
	_, ok := s.snap.Load().identities[identityID]
	return ok
}
