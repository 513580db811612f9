package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pdf-rag-platform/internal/vectorstore"
)

// Store is an in-process vector store using brute-force dot product over
// L2-normalized vectors.
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   []vectorstore.Record
	ids       map[string]struct{}
}

// NewStore returns an empty store. A dimension of 0 accepts whatever the
// first Add uses.
func NewStore(dimension int) *Store {
	return &Store{dimension: dimension, ids: make(map[string]struct{})}
}

func (s *Store) Add(ctx context.Context, records []vectorstore.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dimension
	if dims == 0 && len(s.records) == 0 {
		dims = len(records[0].Vector)
	}
	if err := vectorstore.ValidateRecords(records, dims); err != nil {
		return err
	}
	for _, r := range records {
		if _, exists := s.ids[r.ID]; exists {
			return fmt.Errorf("%w: %s", vectorstore.ErrDuplicateID, r.ID)
		}
	}

	s.dimension = dims
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		r.Vector = vec
		s.records = append(s.records, r)
		s.ids[r.ID] = struct{}{}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) (*vectorstore.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("memory: topK must be positive, got %d", topK)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, store has %d", vectorstore.ErrDimensionMatch, len(vector), s.dimension)
	}

	type scored struct {
		idx   int
		score float32
	}
	var candidates []scored
	for i := range s.records {
		if !filter.Matches(s.records[i].Metadata) {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: dot(s.records[i].Vector, vector)})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if topK < len(candidates) {
		candidates = candidates[:topK]
	}

	result := &vectorstore.QueryResult{}
	for _, c := range candidates {
		r := s.records[c.idx]
		result.IDs = append(result.IDs, r.ID)
		result.Documents = append(result.Documents, r.Document)
		result.Metadatas = append(result.Metadatas, r.Metadata)
		result.Scores = append(result.Scores, c.score)
	}
	return result, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, filter vectorstore.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	deleted := 0
	for _, r := range s.records {
		if filter.Matches(r.Metadata) {
			delete(s.ids, r.ID)
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	// Drop references held past the new length.
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = vectorstore.Record{}
	}
	s.records = kept
	return deleted, nil
}

// Len reports how many records are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
