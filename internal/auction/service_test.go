package auction_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockyard/auction-engine/internal/auction"
	"github.com/stockyard/auction-engine/internal/ledger"
	"github.com/stockyard/auction-engine/internal/model"
)

// newTestRouter wires a Service over fresh in-memory state.
func newTestRouter(t *testing.T) (*testEnv, chi.Router) {
	t.Helper()
	env := newTestEnv(t)
	svc := auction.NewService(env.engine, env.wallets, env.batches, env.chain, env.archive, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/accounts", svc.RegisterAccount)
	r.Get("/api/v1/accounts", svc.ListAccounts)
	r.Get("/api/v1/accounts/{accountID}", svc.GetAccount)
	r.Post("/api/v1/batches", svc.RecordBatch)
	r.Get("/api/v1/batches", svc.ListBatches)
	r.Post("/api/v1/contracts", svc.OpenContract)
	r.Get("/api/v1/contracts", svc.ListContracts)
	r.Get("/api/v1/contracts/{contractID}", svc.GetContract)
	r.Post("/api/v1/contracts/{contractID}/bids", svc.SubmitBid)
	r.Post("/api/v1/contracts/{contractID}/adjudicate", svc.Adjudicate)
	r.Get("/api/v1/chain", svc.GetChain)
	r.Get("/api/v1/chain/last", svc.GetLastBlock)
	r.Get("/api/v1/chain/verify", svc.VerifyChain)
	r.Post("/api/v1/mine", svc.MineBlock)
	r.Get("/api/v1/miners", svc.GetMinerRankings)
	r.Get("/api/v1/settlements", svc.ListSettlements)

	return env, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// seedScenario registers a minimum-size market over HTTP: producer P with a
// zero balance, three funded bidders, and a batch of 100 Angus.
func seedScenario(t *testing.T, router chi.Router) {
	t.Helper()
	for _, acct := range []auction.RegisterAccountRequest{
		{ID: "P", Balance: decimal.Zero},
		{ID: "B1", Balance: d(1000)},
		{ID: "B2", Balance: d(1000)},
		{ID: "B3", Balance: d(1000)},
	} {
		if w := doJSON(t, router, "POST", "/api/v1/accounts", acct); w.Code != http.StatusCreated {
			t.Fatalf("register %s: %d %s", acct.ID, w.Code, w.Body.String())
		}
	}
	w := doJSON(t, router, "POST", "/api/v1/batches", auction.RecordBatchRequest{
		Producer: "P", Quantity: 100, Breed: "Angus", Location: "Farm1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("record batch: %d %s", w.Code, w.Body.String())
	}
}

func openContractHTTP(t *testing.T, router chi.Router, qty int64) model.FuturesContract {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/contracts", auction.OpenContractRequest{
		Producer: "P", BatchIndex: 0, Quantity: qty, DeliveryDate: "2026-12-01",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("open contract: %d %s", w.Code, w.Body.String())
	}
	var c model.FuturesContract
	json.Unmarshal(w.Body.Bytes(), &c)
	return c
}

func TestRegisterAccount_Duplicate(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/accounts", auction.RegisterAccountRequest{ID: "alice", Balance: d(100)})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var acct model.Account
	json.Unmarshal(w.Body.Bytes(), &acct)
	if acct.PublicKey == "" {
		t.Error("expected generated public key in response")
	}

	w = doJSON(t, router, "POST", "/api/v1/accounts", auction.RegisterAccountRequest{ID: "alice", Balance: d(5)})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate account, got %d", w.Code)
	}
}

func TestRegisterAccount_Invalid(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/accounts", auction.RegisterAccountRequest{ID: "", Balance: d(10)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty id, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/accounts", auction.RegisterAccountRequest{ID: "x", Balance: d(-1)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative balance, got %d", w.Code)
	}
}

func TestRecordBatch_Invalid(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/batches", auction.RecordBatchRequest{Producer: "P", Quantity: 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero quantity, got %d", w.Code)
	}
	w = doJSON(t, router, "POST", "/api/v1/batches", auction.RecordBatchRequest{Quantity: 5})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty producer, got %d", w.Code)
	}
}

func TestOpenContract_HTTPErrors(t *testing.T) {
	_, router := newTestRouter(t)
	seedScenario(t, router)

	// Unknown batch index.
	w := doJSON(t, router, "POST", "/api/v1/contracts", auction.OpenContractRequest{
		Producer: "P", BatchIndex: 9, Quantity: 10, DeliveryDate: "2026-12-01",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown batch, got %d", w.Code)
	}

	// Malformed delivery date.
	w = doJSON(t, router, "POST", "/api/v1/contracts", auction.OpenContractRequest{
		Producer: "P", BatchIndex: 0, Quantity: 10, DeliveryDate: "12/01/2026",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad date, got %d", w.Code)
	}

	// Capacity overflow: 80 committed, 30 requested.
	openContractHTTP(t, router, 80)
	w = doJSON(t, router, "POST", "/api/v1/contracts", auction.OpenContractRequest{
		Producer: "P", BatchIndex: 0, Quantity: 30, DeliveryDate: "2026-12-01",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for capacity exceeded, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmitBid_HTTP(t *testing.T) {
	_, router := newTestRouter(t)
	seedScenario(t, router)
	c := openContractHTTP(t, router, 50)

	w := doJSON(t, router, "POST", "/api/v1/contracts/"+c.ID+"/bids", auction.BidRequest{Bidder: "B1", Amount: d(200)})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Bid above balance is rejected against the live registry.
	w = doJSON(t, router, "POST", "/api/v1/contracts/"+c.ID+"/bids", auction.BidRequest{Bidder: "B1", Amount: d(2000)})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for over-balance bid, got %d", w.Code)
	}

	// Non-positive amounts never reach the engine.
	w = doJSON(t, router, "POST", "/api/v1/contracts/"+c.ID+"/bids", auction.BidRequest{Bidder: "B1", Amount: decimal.Zero})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero amount, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/contracts/unknown/bids", auction.BidRequest{Bidder: "B1", Amount: d(10)})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown contract, got %d", w.Code)
	}
}

func TestAdjudicate_HTTPScenario(t *testing.T) {
	env, router := newTestRouter(t)
	seedScenario(t, router)
	c := openContractHTTP(t, router, 50)

	doJSON(t, router, "POST", "/api/v1/contracts/"+c.ID+"/bids", auction.BidRequest{Bidder: "B1", Amount: d(200)})
	doJSON(t, router, "POST", "/api/v1/contracts/"+c.ID+"/bids", auction.BidRequest{Bidder: "B2", Amount: d(300)})

	w := doJSON(t, router, "POST", "/api/v1/contracts/"+c.ID+"/adjudicate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var settlement model.Settlement
	json.Unmarshal(w.Body.Bytes(), &settlement)
	if settlement.Bidder != "B2" || !settlement.Amount.Equal(d(300)) {
		t.Errorf("expected winner (B2, 300), got (%s, %s)", settlement.Bidder, settlement.Amount)
	}

	// Balances through the account endpoint.
	w = doJSON(t, router, "GET", "/api/v1/accounts/B2", nil)
	var b2 model.Account
	json.Unmarshal(w.Body.Bytes(), &b2)
	if !b2.Balance.Equal(d(730)) {
		t.Errorf("B2: expected 730, got %s", b2.Balance)
	}

	// Second adjudication conflicts and leaves the chain alone.
	lengthBefore := env.chain.Length()
	w = doJSON(t, router, "POST", "/api/v1/contracts/"+c.ID+"/adjudicate", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for re-adjudication, got %d", w.Code)
	}
	if env.chain.Length() != lengthBefore {
		t.Errorf("re-adjudication grew the chain")
	}

	// The adjudicated filter shows the settled contract.
	w = doJSON(t, router, "GET", "/api/v1/contracts?status=adjudicated", nil)
	var adjudicated []model.FuturesContract
	json.Unmarshal(w.Body.Bytes(), &adjudicated)
	if len(adjudicated) != 1 || adjudicated[0].ID != c.ID {
		t.Errorf("expected 1 adjudicated contract, got %+v", adjudicated)
	}

	// Settlements endpoint, with and without the producer filter.
	w = doJSON(t, router, "GET", "/api/v1/settlements", nil)
	var settlements []model.Settlement
	json.Unmarshal(w.Body.Bytes(), &settlements)
	if len(settlements) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(settlements))
	}
	w = doJSON(t, router, "GET", "/api/v1/settlements?producer=nobody", nil)
	settlements = nil
	json.Unmarshal(w.Body.Bytes(), &settlements)
	if len(settlements) != 0 {
		t.Errorf("expected no settlements for unknown producer")
	}
}

func TestChainEndpoints(t *testing.T) {
	_, router := newTestRouter(t)
	seedScenario(t, router)

	w := doJSON(t, router, "GET", "/api/v1/chain", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("chain: %d", w.Code)
	}
	var blocks []ledger.Block
	json.Unmarshal(w.Body.Bytes(), &blocks)
	if len(blocks) != 1 || blocks[0].PrevHash != "0" {
		t.Errorf("expected only genesis, got %+v", blocks)
	}

	w = doJSON(t, router, "POST", "/api/v1/mine", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("mine: %d %s", w.Code, w.Body.String())
	}
	var mined auction.MineResponse
	json.Unmarshal(w.Body.Bytes(), &mined)
	if mined.Miner == "" || mined.Block.Index != 1 {
		t.Errorf("unexpected mine response: %+v", mined)
	}

	w = doJSON(t, router, "GET", "/api/v1/chain/last", nil)
	var last ledger.Block
	json.Unmarshal(w.Body.Bytes(), &last)
	if last.Index != 1 {
		t.Errorf("expected last block index 1, got %d", last.Index)
	}

	w = doJSON(t, router, "GET", "/api/v1/chain/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/miners", nil)
	var rankings []model.MinerCredit
	json.Unmarshal(w.Body.Bytes(), &rankings)
	if len(rankings) != 1 || rankings[0].Miner != mined.Miner {
		t.Errorf("unexpected rankings: %+v", rankings)
	}
}

func TestMine_NoAccounts(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/mine", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 with no accounts, got %d", w.Code)
	}
}
