// Package model defines the core domain types shared across the auction engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a named balance-bearing wallet. Balances are mutated only
// through the wallet registry's settlement operations and never go negative.
// The keypair is generated at registration but never used to sign anything.
type Account struct {
	ID         string          `json:"id"`
	PublicKey  string          `json:"public_key"`
	PrivateKey string          `json:"-"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Batch is a producer-declared production lot. Immutable after creation and
// referenced by its index in the batch registry.
type Batch struct {
	Producer  string    `json:"producer"`
	Quantity  int64     `json:"quantity"`
	Breed     string    `json:"breed"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

// Bid is a single bid on a futures contract. Amount is validated against the
// bidder's live balance at submission time; funds are not escrowed, so the
// balance is re-checked atomically at adjudication.
type Bid struct {
	Bidder   string          `json:"bidder"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// ContractStatus is the explicit state of a futures contract.
// Open → Adjudicated is the only transition; Adjudicated is terminal.
type ContractStatus string

const (
	StatusOpen        ContractStatus = "open"
	StatusAdjudicated ContractStatus = "adjudicated"
)

// FuturesContract is a forward contract drawn against a batch's remaining
// capacity. Winner is set at most once, by adjudication, and is immutable
// thereafter.
type FuturesContract struct {
	ID            string         `json:"id"`
	Producer      string         `json:"producer"`
	BatchIndex    int            `json:"batch_index"`
	Quantity      int64          `json:"quantity"`
	DeliveryDate  time.Time      `json:"delivery_date"`
	Bids          []Bid          `json:"bids"`
	Winner        *Bid           `json:"winner,omitempty"`
	Status        ContractStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	AdjudicatedAt *time.Time     `json:"adjudicated_at,omitempty"`
}

// Settlement is an immutable record of an adjudicated contract's fund
// movement. ProducerShare + BidderBonus always equals Amount.
type Settlement struct {
	ID            string          `json:"id"`
	ContractID    string          `json:"contract_id"`
	Producer      string          `json:"producer"`
	Bidder        string          `json:"bidder"`
	Amount        decimal.Decimal `json:"amount"`
	ProducerShare decimal.Decimal `json:"producer_share"`
	BidderBonus   decimal.Decimal `json:"bidder_bonus"`
	BlockIndex    int             `json:"block_index"`
	Timestamp     time.Time       `json:"timestamp"`
}

// BlockRecord mirrors a sealed ledger block into the settlement archive.
// The in-process chain remains the source of truth; records exist so block
// history can be queried through the store layer.
type BlockRecord struct {
	Index     int       `json:"index"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"previous_hash"`
	Nonce     int       `json:"nonce"`
	Payload   string    `json:"payload"` // canonical JSON of the block payload
	Timestamp time.Time `json:"timestamp"`
}

// MinerCredit is one row of the cosmetic miner ranking. A randomly chosen
// account is credited per mined empty block; no invariants attach to it.
type MinerCredit struct {
	Miner  string `json:"miner"`
	Blocks int    `json:"blocks"`
}
