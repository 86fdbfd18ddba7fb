package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockyard/auction-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL. All monetary values are
// stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed archive.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertSettlement(ctx context.Context, st *model.Settlement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (id, contract_id, producer, bidder, amount, producer_share, bidder_bonus, block_index, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		st.ID, st.ContractID, st.Producer, st.Bidder,
		st.Amount.String(), st.ProducerShare.String(), st.BidderBonus.String(),
		st.BlockIndex, st.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListSettlements(ctx context.Context) ([]model.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, contract_id, producer, bidder,
		        amount::TEXT, producer_share::TEXT, bidder_bonus::TEXT,
		        block_index, timestamp
		 FROM settlements ORDER BY timestamp`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSettlements(rows)
}

func (s *PostgresStore) SettlementsByProducer(ctx context.Context, producer string) ([]model.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, contract_id, producer, bidder,
		        amount::TEXT, producer_share::TEXT, bidder_bonus::TEXT,
		        block_index, timestamp
		 FROM settlements WHERE producer = $1 ORDER BY timestamp`, producer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSettlements(rows)
}

func (s *PostgresStore) InsertBlockRecord(ctx context.Context, b *model.BlockRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO block_records (index, hash, previous_hash, nonce, payload, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.Index, b.Hash, b.PrevHash, b.Nonce, b.Payload, b.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListBlockRecords(ctx context.Context) ([]model.BlockRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT index, hash, previous_hash, nonce, payload, timestamp
		 FROM block_records ORDER BY index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.BlockRecord
	for rows.Next() {
		var b model.BlockRecord
		if err := rows.Scan(&b.Index, &b.Hash, &b.PrevHash, &b.Nonce, &b.Payload, &b.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, b)
	}
	return records, rows.Err()
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSettlements reads query rows into Settlement values, parsing the
// NUMERIC columns from their text form.
func scanSettlements(rows pgxRows) ([]model.Settlement, error) {
	var settlements []model.Settlement
	for rows.Next() {
		var st model.Settlement
		var amountS, shareS, bonusS string

		if err := rows.Scan(&st.ID, &st.ContractID, &st.Producer, &st.Bidder,
			&amountS, &shareS, &bonusS, &st.BlockIndex, &st.Timestamp); err != nil {
			return nil, err
		}

		var err error
		if st.Amount, err = decimal.NewFromString(amountS); err != nil {
			return nil, fmt.Errorf("settlement %s: bad amount: %w", st.ID, err)
		}
		st.ProducerShare, _ = decimal.NewFromString(shareS)
		st.BidderBonus, _ = decimal.NewFromString(bonusS)

		settlements = append(settlements, st)
	}
	return settlements, rows.Err()
}
