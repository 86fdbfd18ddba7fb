package wallet_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockyard/auction-engine/internal/wallet"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestRegister_Duplicate(t *testing.T) {
	r := wallet.NewRegistry()

	acct, err := r.Register("alice", d(1000))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acct.PublicKey == "" || acct.PrivateKey == "" {
		t.Error("expected generated keypair")
	}
	if acct.PublicKey == acct.PrivateKey {
		t.Error("public key must be derived, not equal to private key")
	}

	if _, err := r.Register("alice", d(500)); !errors.Is(err, wallet.ErrDuplicateAccount) {
		t.Errorf("expected ErrDuplicateAccount, got %v", err)
	}
	if bal, _ := r.Balance("alice"); !bal.Equal(d(1000)) {
		t.Errorf("duplicate registration must not touch balance, got %s", bal)
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	r := wallet.NewRegistry()
	r.Register("bob", d(100))

	if err := r.Debit("bob", d(100.01)); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if bal, _ := r.Balance("bob"); !bal.Equal(d(100)) {
		t.Errorf("failed debit must leave balance unchanged, got %s", bal)
	}

	// Draining to exactly zero is allowed.
	if err := r.Debit("bob", d(100)); err != nil {
		t.Fatalf("debit to zero: %v", err)
	}
	if bal, _ := r.Balance("bob"); !bal.IsZero() {
		t.Errorf("expected zero balance, got %s", bal)
	}
}

func TestCredit(t *testing.T) {
	r := wallet.NewRegistry()
	r.Register("carol", d(0))

	if err := r.Credit("carol", d(250.50)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if bal, _ := r.Balance("carol"); !bal.Equal(d(250.50)) {
		t.Errorf("expected 250.50, got %s", bal)
	}

	if err := r.Credit("nobody", d(1)); !errors.Is(err, wallet.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestTransferWithSplit(t *testing.T) {
	r := wallet.NewRegistry()
	r.Register("payer", d(1000))
	r.Register("producer", d(0))
	r.Register("rebatee", d(0))

	if err := r.TransferWithSplit("payer", "producer", "rebatee", d(300), d(0.1)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if bal, _ := r.Balance("payer"); !bal.Equal(d(700)) {
		t.Errorf("payer: expected 700, got %s", bal)
	}
	if bal, _ := r.Balance("producer"); !bal.Equal(d(270)) {
		t.Errorf("producer: expected 270, got %s", bal)
	}
	if bal, _ := r.Balance("rebatee"); !bal.Equal(d(30)) {
		t.Errorf("rebatee: expected 30, got %s", bal)
	}
}

func TestTransferWithSplit_PayerIsRebatee(t *testing.T) {
	// The adjudication flow: the winning bidder pays and receives the bonus.
	r := wallet.NewRegistry()
	r.Register("winner", d(1000))
	r.Register("producer", d(0))

	if err := r.TransferWithSplit("winner", "producer", "winner", d(300), d(0.1)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if bal, _ := r.Balance("winner"); !bal.Equal(d(730)) {
		t.Errorf("winner: expected 730, got %s", bal)
	}
	if bal, _ := r.Balance("producer"); !bal.Equal(d(270)) {
		t.Errorf("producer: expected 270, got %s", bal)
	}
}

func TestTransferWithSplit_InsufficientFunds(t *testing.T) {
	r := wallet.NewRegistry()
	r.Register("payer", d(100))
	r.Register("producer", d(50))
	r.Register("rebatee", d(25))

	err := r.TransferWithSplit("payer", "producer", "rebatee", d(100.5), d(0.1))
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// No partial effect.
	for id, want := range map[string]decimal.Decimal{
		"payer": d(100), "producer": d(50), "rebatee": d(25),
	} {
		if bal, _ := r.Balance(id); !bal.Equal(want) {
			t.Errorf("%s: expected %s, got %s", id, want, bal)
		}
	}
}

func TestTransferWithSplit_UnknownAccount(t *testing.T) {
	r := wallet.NewRegistry()
	r.Register("payer", d(100))
	r.Register("producer", d(0))

	err := r.TransferWithSplit("payer", "producer", "ghost", d(10), d(0.1))
	if !errors.Is(err, wallet.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if bal, _ := r.Balance("payer"); !bal.Equal(d(100)) {
		t.Errorf("payer must be untouched, got %s", bal)
	}
}

func TestBalances_NeverNegativeUnderConcurrency(t *testing.T) {
	r := wallet.NewRegistry()
	r.Register("hot", d(100))
	r.Register("sink", d(0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Most of these must fail; the accepted ones never overdraw.
			r.TransferWithSplit("hot", "sink", "sink", d(30), d(0.1))
		}()
	}
	wg.Wait()

	bal, _ := r.Balance("hot")
	if bal.IsNegative() {
		t.Errorf("balance went negative: %s", bal)
	}

	sink, _ := r.Balance("sink")
	if !bal.Add(sink).Equal(d(100)) {
		t.Errorf("funds not conserved: hot=%s sink=%s", bal, sink)
	}
}

func TestList_RegistrationOrder(t *testing.T) {
	r := wallet.NewRegistry()
	for _, id := range []string{"p", "b1", "b2"} {
		r.Register(id, d(1))
	}

	accts := r.List()
	if len(accts) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(accts))
	}
	for i, want := range []string{"p", "b1", "b2"} {
		if accts[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, accts[i].ID)
		}
	}
}
