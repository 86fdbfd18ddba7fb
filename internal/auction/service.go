package auction

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockyard/auction-engine/internal/batch"
	"github.com/stockyard/auction-engine/internal/ledger"
	"github.com/stockyard/auction-engine/internal/model"
	"github.com/stockyard/auction-engine/internal/store"
	"github.com/stockyard/auction-engine/internal/wallet"
)

// Service exposes the engine's operations over HTTP. The caller supplies
// range-checked primitive arguments; handlers validate shape (non-empty ids,
// positive quantities, ISO dates) and map the engine's errors to statuses.
// Pass nil for hub if WebSocket broadcasting is not needed.
type Service struct {
	engine  *Engine
	wallets *wallet.Registry
	batches *batch.Registry
	chain   *ledger.Chain
	archive store.Store
	wsHub   *WSHub
}

// NewService creates the HTTP service.
func NewService(engine *Engine, wallets *wallet.Registry, batches *batch.Registry, chain *ledger.Chain, archive store.Store, hub *WSHub) *Service {
	return &Service{
		engine:  engine,
		wallets: wallets,
		batches: batches,
		chain:   chain,
		archive: archive,
		wsHub:   hub,
	}
}

// --- Request types ---

// RegisterAccountRequest is the JSON body for POST /accounts.
type RegisterAccountRequest struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// RecordBatchRequest is the JSON body for POST /batches.
type RecordBatchRequest struct {
	Producer string `json:"producer"`
	Quantity int64  `json:"quantity"`
	Breed    string `json:"breed"`
	Location string `json:"location"`
}

// RecordBatchResponse echoes the recorded batch with its index.
type RecordBatchResponse struct {
	Index int         `json:"index"`
	Batch model.Batch `json:"batch"`
}

// OpenContractRequest is the JSON body for POST /contracts.
// DeliveryDate is an ISO-8601 calendar date.
type OpenContractRequest struct {
	Producer     string `json:"producer"`
	BatchIndex   int    `json:"batch_index"`
	Quantity     int64  `json:"quantity"`
	DeliveryDate string `json:"delivery_date"`
}

// BidRequest is the JSON body for POST /contracts/{contractID}/bids.
type BidRequest struct {
	Bidder string          `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// MineResponse is returned from POST /mine.
type MineResponse struct {
	Miner string       `json:"miner"`
	Block ledger.Block `json:"block"`
}

// --- Account handlers ---

// RegisterAccount handles POST /api/v1/accounts
func (s *Service) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}
	if req.Balance.IsNegative() {
		writeError(w, "balance must be non-negative", http.StatusBadRequest)
		return
	}

	acct, err := s.wallets.Register(req.ID, req.Balance)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	slog.Info("account registered", "id", acct.ID, "balance", acct.Balance.String())
	writeJSON(w, http.StatusCreated, acct)
}

// ListAccounts handles GET /api/v1/accounts
func (s *Service) ListAccounts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.wallets.List())
}

// GetAccount handles GET /api/v1/accounts/{accountID}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.wallets.Get(chi.URLParam(r, "accountID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// --- Batch handlers ---

// RecordBatch handles POST /api/v1/batches
func (s *Service) RecordBatch(w http.ResponseWriter, r *http.Request) {
	var req RecordBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Producer == "" {
		writeError(w, "producer is required", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, "quantity must be a positive integer", http.StatusBadRequest)
		return
	}

	index := s.batches.Record(req.Producer, req.Quantity, req.Breed, req.Location)
	b, _ := s.batches.Get(index)

	slog.Info("batch recorded",
		"index", index,
		"producer", req.Producer,
		"quantity", req.Quantity,
		"breed", req.Breed,
	)
	writeJSON(w, http.StatusCreated, RecordBatchResponse{Index: index, Batch: b})
}

// ListBatches handles GET /api/v1/batches
func (s *Service) ListBatches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.batches.List())
}

// --- Contract handlers ---

// OpenContract handles POST /api/v1/contracts
func (s *Service) OpenContract(w http.ResponseWriter, r *http.Request) {
	var req OpenContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Producer == "" {
		writeError(w, "producer is required", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, "quantity must be a positive integer", http.StatusBadRequest)
		return
	}
	delivery, err := time.Parse("2006-01-02", req.DeliveryDate)
	if err != nil {
		writeError(w, "delivery_date must be an ISO date (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	c, err := s.engine.OpenContract(req.Producer, req.BatchIndex, req.Quantity, delivery)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListContracts handles GET /api/v1/contracts
// Pass ?status=adjudicated to list only settled contracts.
func (s *Service) ListContracts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") == string(model.StatusAdjudicated) {
		writeJSON(w, http.StatusOK, nonNil(s.engine.Adjudicated()))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.engine.Contracts()))
}

// GetContract handles GET /api/v1/contracts/{contractID}
func (s *Service) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.Contract(chi.URLParam(r, "contractID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SubmitBid handles POST /api/v1/contracts/{contractID}/bids
func (s *Service) SubmitBid(w http.ResponseWriter, r *http.Request) {
	contractID := chi.URLParam(r, "contractID")

	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Bidder == "" {
		writeError(w, "bidder is required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	bid, err := s.engine.SubmitBid(contractID, req.Bidder, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "bid_submitted",
			ContractID: contractID,
			Bidder:     bid.Bidder,
			Amount:     bid.Amount.String(),
		})
	}
	writeJSON(w, http.StatusCreated, bid)
}

// Adjudicate handles POST /api/v1/contracts/{contractID}/adjudicate
func (s *Service) Adjudicate(w http.ResponseWriter, r *http.Request) {
	contractID := chi.URLParam(r, "contractID")

	settlement, err := s.engine.Adjudicate(r.Context(), contractID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "contract_adjudicated",
			ContractID: contractID,
			Producer:   settlement.Producer,
			Bidder:     settlement.Bidder,
			Amount:     settlement.Amount.String(),
			BlockIndex: settlement.BlockIndex,
		})
	}
	writeJSON(w, http.StatusOK, settlement)
}

// --- Ledger handlers ---

// GetChain handles GET /api/v1/chain
func (s *Service) GetChain(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Blocks())
}

// GetLastBlock handles GET /api/v1/chain/last
func (s *Service) GetLastBlock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.LastBlock())
}

// VerifyChain handles GET /api/v1/chain/verify
func (s *Service) VerifyChain(w http.ResponseWriter, _ *http.Request) {
	if err := s.chain.Verify(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "length": s.chain.Length()})
}

// --- Mining handlers ---

// MineBlock handles POST /api/v1/mine
func (s *Service) MineBlock(w http.ResponseWriter, r *http.Request) {
	block, miner, err := s.engine.MineEmptyBlock(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "block_sealed",
			BlockIndex: block.Index,
			BlockHash:  block.Hash,
			Miner:      miner,
		})
	}
	writeJSON(w, http.StatusCreated, MineResponse{Miner: miner, Block: block})
}

// GetMinerRankings handles GET /api/v1/miners
func (s *Service) GetMinerRankings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.MinerRankings())
}

// --- Settlement handlers ---

// ListSettlements handles GET /api/v1/settlements
// Pass ?producer=<id> to filter by producer.
func (s *Service) ListSettlements(w http.ResponseWriter, r *http.Request) {
	var (
		settlements []model.Settlement
		err         error
	)
	if producer := r.URL.Query().Get("producer"); producer != "" {
		settlements, err = s.archive.SettlementsByProducer(r.Context(), producer)
	} else {
		settlements, err = s.archive.ListSettlements(r.Context())
	}
	if err != nil {
		writeError(w, "failed to list settlements", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(settlements))
}

// --- Helpers ---

// writeEngineError maps domain errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, wallet.ErrAccountNotFound),
		errors.Is(err, batch.ErrBatchNotFound),
		errors.Is(err, ErrContractNotFound):
		status = http.StatusNotFound
	case errors.Is(err, wallet.ErrDuplicateAccount),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrContractAdjudicated),
		errors.Is(err, ErrNoBids),
		errors.Is(err, ErrInsufficientBidders),
		errors.Is(err, ErrSettlementFailed):
		status = http.StatusConflict
	case errors.Is(err, ErrNoAccounts):
		status = http.StatusUnprocessableEntity
	}
	writeError(w, err.Error(), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// nonNil keeps empty JSON arrays as [] instead of null.
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
