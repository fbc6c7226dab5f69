package memory

import (
	"context"
	"sort"
	"sync"

	"token-scout/internal/domain"
	"token-scout/internal/storage"
)

// ScoreHistoryStore is an in-memory implementation of storage.ScoreHistoryStore.
type ScoreHistoryStore struct {
	mu     sync.RWMutex
	points []*domain.ScorePoint
}

// NewScoreHistoryStore creates a new in-memory score history store.
func NewScoreHistoryStore() *ScoreHistoryStore {
	return &ScoreHistoryStore{}
}

// Compile-time interface check.
var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// Append adds score points. Duplicates are not checked.
func (s *ScoreHistoryStore) Append(_ context.Context, points []*domain.ScorePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
		pCopy := *p
		s.points = append(s.points, &pCopy)
	}
	return nil
}

// GetByMint retrieves all points for a mint, ordered by timestamp ASC.
func (s *ScoreHistoryStore) GetByMint(_ context.Context, mint string) ([]*domain.ScorePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScorePoint
	for _, p := range s.points {
		if p.Mint == mint {
			pCopy := *p
			result = append(result, &pCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}
