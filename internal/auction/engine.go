// Package auction implements the futures engine: forward contracts drawn
// against batch capacity, bid collection, best-bid adjudication, and the
// settlement that pays the producer and records the outcome on the ledger.
//
// All monetary values use shopspring/decimal — never float64 for money.
package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockyard/auction-engine/internal/batch"
	"github.com/stockyard/auction-engine/internal/ledger"
	"github.com/stockyard/auction-engine/internal/metrics"
	"github.com/stockyard/auction-engine/internal/model"
	"github.com/stockyard/auction-engine/internal/store"
	"github.com/stockyard/auction-engine/internal/wallet"
)

var (
	// ErrContractNotFound is returned for an unknown contract id.
	ErrContractNotFound = errors.New("auction: contract not found")

	// ErrCapacityExceeded is returned when a new contract would push the
	// producer's cumulative contracted quantity above the batch's quantity.
	ErrCapacityExceeded = errors.New("auction: batch capacity exceeded")

	// ErrContractAdjudicated is returned when bidding on or re-adjudicating
	// a contract whose winner is already set.
	ErrContractAdjudicated = errors.New("auction: contract already adjudicated")

	// ErrNoBids is returned when adjudicating a contract with an empty bid list.
	ErrNoBids = errors.New("auction: no bids")

	// ErrInsufficientBidders is returned when the account registry holds
	// fewer than the minimum market size.
	ErrInsufficientBidders = errors.New("auction: not enough registered accounts")

	// ErrSettlementFailed is returned when the settlement transfer cannot
	// complete; the contract and all balances are left untouched.
	ErrSettlementFailed = errors.New("auction: settlement failed")

	// ErrNoAccounts is returned by MineEmptyBlock when no account can be
	// credited for the block.
	ErrNoAccounts = errors.New("auction: no accounts registered")
)

// MinBidders is the minimum number of registered accounts required before
// any contract may be adjudicated.
const MinBidders = 3

// defaultRebateRate is the fraction of the winning amount returned to the
// winning bidder as a bonus; the producer receives the rest.
const defaultRebateRate = "0.1"

// Engine owns all futures contracts and drives settlement through the
// wallet registry and the ledger. A single mutex serializes contract
// mutation (open/bid/adjudicate/mine); state is in-process and requests
// are handled one at a time.
type Engine struct {
	wallets *wallet.Registry
	batches *batch.Registry
	chain   *ledger.Chain
	archive store.Store

	mu         sync.Mutex
	contracts  []*model.FuturesContract
	byID       map[string]*model.FuturesContract
	minerBook  map[string]int
	rebateRate decimal.Decimal
}

// NewEngine creates a futures engine over the given registries, chain, and
// archive.
func NewEngine(wallets *wallet.Registry, batches *batch.Registry, chain *ledger.Chain, archive store.Store) *Engine {
	rebate, _ := decimal.NewFromString(defaultRebateRate)
	return &Engine{
		wallets:    wallets,
		batches:    batches,
		chain:      chain,
		archive:    archive,
		byID:       make(map[string]*model.FuturesContract),
		minerBook:  make(map[string]int),
		rebateRate: rebate,
	}
}

// OpenContract creates a futures contract against a batch's remaining
// capacity. The capacity check sums quantities already contracted against
// this batch by this producer; it is enforced at creation time only.
func (e *Engine) OpenContract(producer string, batchIndex int, quantity int64, delivery time.Time) (model.FuturesContract, error) {
	b, err := e.batches.Get(batchIndex)
	if err != nil {
		return model.FuturesContract{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var committed int64
	for _, c := range e.contracts {
		if c.Producer == producer && c.BatchIndex == batchIndex {
			committed += c.Quantity
		}
	}
	if committed+quantity > b.Quantity {
		return model.FuturesContract{}, fmt.Errorf("%w: batch %d holds %d, %d already contracted, requested %d",
			ErrCapacityExceeded, batchIndex, b.Quantity, committed, quantity)
	}

	c := &model.FuturesContract{
		ID:           uuid.New().String(),
		Producer:     producer,
		BatchIndex:   batchIndex,
		Quantity:     quantity,
		DeliveryDate: delivery,
		Status:       model.StatusOpen,
		CreatedAt:    time.Now().UTC(),
	}
	e.contracts = append(e.contracts, c)
	e.byID[c.ID] = c

	slog.Info("contract opened",
		"contract_id", c.ID,
		"producer", producer,
		"batch_index", batchIndex,
		"quantity", quantity,
		"delivery", delivery.Format("2006-01-02"),
	)
	return *c, nil
}

// SubmitBid appends a bid to an open contract. The amount is checked against
// the bidder's live balance in the account registry, not a cached value.
// Funds are not escrowed; adjudication re-validates atomically.
func (e *Engine) SubmitBid(contractID, bidder string, amount decimal.Decimal) (model.Bid, error) {
	acct, err := e.wallets.Get(bidder)
	if err != nil {
		return model.Bid{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byID[contractID]
	if !ok {
		return model.Bid{}, fmt.Errorf("%w: %s", ErrContractNotFound, contractID)
	}
	if c.Status == model.StatusAdjudicated {
		return model.Bid{}, fmt.Errorf("%w: %s", ErrContractAdjudicated, contractID)
	}
	if amount.GreaterThan(acct.Balance) {
		return model.Bid{}, fmt.Errorf("%w: %s has %s, bid %s",
			wallet.ErrInsufficientFunds, bidder, acct.Balance, amount)
	}

	bid := model.Bid{
		Bidder:   bidder,
		Amount:   amount,
		PlacedAt: time.Now().UTC(),
	}
	c.Bids = append(c.Bids, bid)

	metrics.BidsTotal.Inc()
	slog.Info("bid submitted",
		"contract_id", contractID,
		"bidder", bidder,
		"amount", amount.String(),
	)
	return bid, nil
}

// Adjudicate selects the winning bid, settles funds, and seals the outcome
// on the ledger. The winner is the bid with the maximum amount; ties break
// to the earliest submission (first maximal element in insertion order).
//
// Settlement is atomic: the transfer runs first, and on any failure
// (stale bid balance included) the contract stays Open with no balance change.
// The sealed block carries {contract_id, producer, winner, amount}.
func (e *Engine) Adjudicate(ctx context.Context, contractID string) (model.Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byID[contractID]
	if !ok {
		return model.Settlement{}, fmt.Errorf("%w: %s", ErrContractNotFound, contractID)
	}
	if c.Status == model.StatusAdjudicated {
		metrics.AdjudicationsTotal.WithLabelValues("already_adjudicated").Inc()
		return model.Settlement{}, fmt.Errorf("%w: %s", ErrContractAdjudicated, contractID)
	}
	// The market-size gate applies before any bid is examined: a registry
	// below the minimum cannot adjudicate at all, bids or no bids.
	if e.wallets.Count() < MinBidders {
		metrics.AdjudicationsTotal.WithLabelValues("insufficient_bidders").Inc()
		return model.Settlement{}, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientBidders, e.wallets.Count(), MinBidders)
	}
	if len(c.Bids) == 0 {
		metrics.AdjudicationsTotal.WithLabelValues("no_bids").Inc()
		return model.Settlement{}, fmt.Errorf("%w: %s", ErrNoBids, contractID)
	}

	best := c.Bids[0]
	for _, bid := range c.Bids[1:] {
		if bid.Amount.GreaterThan(best.Amount) {
			best = bid
		}
	}

	rebate := best.Amount.Mul(e.rebateRate)
	share := best.Amount.Sub(rebate)

	// Re-validate the winner's balance atomically inside the transfer: bids
	// are not escrowed, so the balance may be stale by now.
	if err := e.wallets.TransferWithSplit(best.Bidder, c.Producer, best.Bidder, best.Amount, e.rebateRate); err != nil {
		metrics.AdjudicationsTotal.WithLabelValues("settlement_failed").Inc()
		return model.Settlement{}, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}

	sealStart := time.Now()
	block, err := e.chain.Append(ctx, map[string]any{
		"contract_id": c.ID,
		"producer":    c.Producer,
		"winner":      best.Bidder,
		"amount":      best.Amount.String(),
	})
	if err != nil {
		// Unwind the transfer so a failed adjudication leaves balances
		// exactly as they were. The engine mutex is still held, so these
		// compensations cannot fail; a logged error here means balances
		// were mutated outside the settlement path.
		if derr := e.wallets.Debit(c.Producer, share); derr != nil {
			slog.Error("settlement unwind failed", "contract_id", c.ID, "account", c.Producer, "err", derr)
		}
		if derr := e.wallets.Debit(best.Bidder, rebate); derr != nil {
			slog.Error("settlement unwind failed", "contract_id", c.ID, "account", best.Bidder, "err", derr)
		}
		if cerr := e.wallets.Credit(best.Bidder, best.Amount); cerr != nil {
			slog.Error("settlement unwind failed", "contract_id", c.ID, "account", best.Bidder, "err", cerr)
		}
		metrics.AdjudicationsTotal.WithLabelValues("sealing_failed").Inc()
		return model.Settlement{}, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}
	metrics.SealingDuration.Observe(time.Since(sealStart).Seconds())
	metrics.ChainHeight.Set(float64(e.chain.Length()))
	volume, _ := best.Amount.Float64()
	metrics.SettlementVolume.Add(volume)
	metrics.AdjudicationsTotal.WithLabelValues("adjudicated").Inc()

	now := time.Now().UTC()
	winner := best
	c.Winner = &winner
	c.Status = model.StatusAdjudicated
	c.AdjudicatedAt = &now

	settlement := model.Settlement{
		ID:            uuid.New().String(),
		ContractID:    c.ID,
		Producer:      c.Producer,
		Bidder:        best.Bidder,
		Amount:        best.Amount,
		ProducerShare: share,
		BidderBonus:   rebate,
		BlockIndex:    block.Index,
		Timestamp:     now,
	}
	e.archiveSettlement(ctx, &settlement, block)

	slog.Info("contract adjudicated",
		"contract_id", c.ID,
		"producer", c.Producer,
		"winner", best.Bidder,
		"amount", best.Amount.String(),
		"block_index", block.Index,
		"block_hash", block.Hash,
	)
	return settlement, nil
}

// MineEmptyBlock seals a block with no transaction and credits a randomly
// chosen registered account in the miner ranking. Cosmetic: the ranking has
// no invariants of its own.
func (e *Engine) MineEmptyBlock(ctx context.Context) (ledger.Block, string, error) {
	ids := e.wallets.IDs()
	if len(ids) == 0 {
		return ledger.Block{}, "", ErrNoAccounts
	}
	miner := ids[rand.Intn(len(ids))]

	e.mu.Lock()
	defer e.mu.Unlock()

	sealStart := time.Now()
	block, err := e.chain.Append(ctx, map[string]any{"type": "empty", "miner": miner})
	if err != nil {
		return ledger.Block{}, "", err
	}
	metrics.SealingDuration.Observe(time.Since(sealStart).Seconds())
	metrics.ChainHeight.Set(float64(e.chain.Length()))

	e.minerBook[miner]++
	e.mirrorBlock(ctx, block)

	slog.Info("empty block mined", "miner", miner, "block_index", block.Index)
	return block, miner, nil
}

// MinerRankings returns the miner credit table, most blocks first; ties
// break by miner id for stable output.
func (e *Engine) MinerRankings() []model.MinerCredit {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.MinerCredit, 0, len(e.minerBook))
	for miner, blocks := range e.minerBook {
		out = append(out, model.MinerCredit{Miner: miner, Blocks: blocks})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Blocks != out[j].Blocks {
			return out[i].Blocks > out[j].Blocks
		}
		return out[i].Miner < out[j].Miner
	})
	return out
}

// Contract returns a copy of one contract.
func (e *Engine) Contract(contractID string) (model.FuturesContract, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byID[contractID]
	if !ok {
		return model.FuturesContract{}, fmt.Errorf("%w: %s", ErrContractNotFound, contractID)
	}
	return copyContract(c), nil
}

// Contracts returns copies of all contracts in creation order.
func (e *Engine) Contracts() []model.FuturesContract {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.FuturesContract, 0, len(e.contracts))
	for _, c := range e.contracts {
		out = append(out, copyContract(c))
	}
	return out
}

// Adjudicated returns only the contracts whose winner is set.
func (e *Engine) Adjudicated() []model.FuturesContract {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []model.FuturesContract
	for _, c := range e.contracts {
		if c.Status == model.StatusAdjudicated {
			out = append(out, copyContract(c))
		}
	}
	return out
}

// archiveSettlement mirrors the settlement and its block into the archive.
// The ledger is the source of truth; archive failures are logged, not fatal
// (the block is already sealed and cannot be unwound).
func (e *Engine) archiveSettlement(ctx context.Context, st *model.Settlement, block ledger.Block) {
	if err := e.archive.InsertSettlement(ctx, st); err != nil {
		slog.Error("settlement archive failed", "settlement_id", st.ID, "err", err)
	}
	e.mirrorBlock(ctx, block)
}

func (e *Engine) mirrorBlock(ctx context.Context, block ledger.Block) {
	payload, err := json.Marshal(block.Payload)
	if err != nil {
		slog.Error("block payload marshal failed", "block_index", block.Index, "err", err)
		return
	}
	record := &model.BlockRecord{
		Index:     block.Index,
		Hash:      block.Hash,
		PrevHash:  block.PrevHash,
		Nonce:     block.Nonce,
		Payload:   string(payload),
		Timestamp: time.Unix(0, block.Timestamp).UTC(),
	}
	if err := e.archive.InsertBlockRecord(ctx, record); err != nil {
		slog.Error("block archive failed", "block_index", block.Index, "err", err)
	}
}

func copyContract(c *model.FuturesContract) model.FuturesContract {
	out := *c
	out.Bids = make([]model.Bid, len(c.Bids))
	copy(out.Bids, c.Bids)
	if c.Winner != nil {
		w := *c.Winner
		out.Winner = &w
	}
	return out
}
