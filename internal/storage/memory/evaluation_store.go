package memory

import (
	"context"
	"sort"
	"sync"

	"token-scout/internal/domain"
	"token-scout/internal/storage"
)

// EvaluationStore is an in-memory implementation of storage.EvaluationStore.
type EvaluationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.EvaluationRecord // keyed by evaluation_id
}

// NewEvaluationStore creates a new in-memory evaluation store.
func NewEvaluationStore() *EvaluationStore {
	return &EvaluationStore{
		data: make(map[string]*domain.EvaluationRecord),
	}
}

// Compile-time interface check.
var _ storage.EvaluationStore = (*EvaluationStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if evaluation_id exists.
func (s *EvaluationStore) Insert(_ context.Context, rec *domain.EvaluationRecord) error {
	if rec == nil || rec.EvaluationID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.EvaluationID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recCopy := *rec
	s.data[rec.EvaluationID] = &recCopy
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *EvaluationStore) GetByID(_ context.Context, evaluationID string) (*domain.EvaluationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[evaluationID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// GetByMint retrieves all records for a mint, ordered by evaluated_at ASC.
func (s *EvaluationStore) GetByMint(_ context.Context, mint string) ([]*domain.EvaluationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EvaluationRecord
	for _, rec := range s.data {
		if rec.Mint == mint {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EvaluatedAt < result[j].EvaluatedAt
	})

	return result, nil
}

// GetRecent retrieves the latest records, ordered by evaluated_at DESC.
func (s *EvaluationStore) GetRecent(_ context.Context, limit int) ([]*domain.EvaluationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.EvaluationRecord, 0, len(s.data))
	for _, rec := range s.data {
		recCopy := *rec
		result = append(result, &recCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EvaluatedAt > result[j].EvaluatedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
