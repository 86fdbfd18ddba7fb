package store

import (
	"context"
	"sort"
	"sync"

	"github.com/stockyard/auction-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. The default archive:
// session state lives only in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	settlements []model.Settlement
	blocks      []model.BlockRecord
}

// NewMemoryStore creates a new in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertSettlement(_ context.Context, st *model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settlements = append(s.settlements, *st)
	return nil
}

func (s *MemoryStore) ListSettlements(_ context.Context) ([]model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Settlement, len(s.settlements))
	copy(out, s.settlements)
	return out, nil
}

func (s *MemoryStore) SettlementsByProducer(_ context.Context, producer string) ([]model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Settlement
	for _, st := range s.settlements {
		if st.Producer == producer {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertBlockRecord(_ context.Context, b *model.BlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks = append(s.blocks, *b)
	return nil
}

func (s *MemoryStore) ListBlockRecords(_ context.Context) ([]model.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.BlockRecord, len(s.blocks))
	copy(out, s.blocks)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
