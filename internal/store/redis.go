package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockyard/auction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary archive.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertSettlement(ctx context.Context, st *model.Settlement) error {
	if err := s.primary.InsertSettlement(ctx, st); err != nil {
		return err
	}
	s.rdb.Del(ctx, settlementsKey, producerKey(st.Producer))
	return nil
}

func (s *CachedStore) InsertBlockRecord(ctx context.Context, b *model.BlockRecord) error {
	return s.primary.InsertBlockRecord(ctx, b)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListSettlements(ctx context.Context) ([]model.Settlement, error) {
	data, err := s.rdb.Get(ctx, settlementsKey).Bytes()
	if err == nil {
		var settlements []model.Settlement
		if json.Unmarshal(data, &settlements) == nil {
			return settlements, nil
		}
	}

	// Cache miss: read from primary.
	settlements, err := s.primary.ListSettlements(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(settlements); err == nil {
		s.rdb.Set(ctx, settlementsKey, data, s.ttl)
	}
	return settlements, nil
}

func (s *CachedStore) SettlementsByProducer(ctx context.Context, producer string) ([]model.Settlement, error) {
	data, err := s.rdb.Get(ctx, producerKey(producer)).Bytes()
	if err == nil {
		var settlements []model.Settlement
		if json.Unmarshal(data, &settlements) == nil {
			return settlements, nil
		}
	}

	settlements, err := s.primary.SettlementsByProducer(ctx, producer)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(settlements); err == nil {
		s.rdb.Set(ctx, producerKey(producer), data, s.ttl)
	}
	return settlements, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListBlockRecords(ctx context.Context) ([]model.BlockRecord, error) {
	return s.primary.ListBlockRecords(ctx)
}

// --- Cache keys ---

const settlementsKey = "settlements:all"

func producerKey(producer string) string { return fmt.Sprintf("settlements:producer:%s", producer) }
