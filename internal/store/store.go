// Package store defines the settlement archive for the auction engine.
// The in-process ledger and registries are the source of truth; the archive
// mirrors settlements and sealed blocks for querying. Implementations
// include in-memory (default), PostgreSQL, and a Redis read-through cache.
package store

import (
	"context"

	"github.com/stockyard/auction-engine/internal/model"
)

// Store is the archive interface.
type Store interface {
	// InsertSettlement appends an immutable settlement record.
	InsertSettlement(ctx context.Context, s *model.Settlement) error

	// ListSettlements returns all settlements in insertion order.
	ListSettlements(ctx context.Context) ([]model.Settlement, error)

	// SettlementsByProducer returns the settlements paying one producer.
	SettlementsByProducer(ctx context.Context, producer string) ([]model.Settlement, error)

	// InsertBlockRecord mirrors a sealed ledger block.
	InsertBlockRecord(ctx context.Context, b *model.BlockRecord) error

	// ListBlockRecords returns mirrored blocks in index order.
	ListBlockRecords(ctx context.Context) ([]model.BlockRecord, error)
}
