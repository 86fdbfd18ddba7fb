// Package wallet implements the in-memory account registry. All balance
// mutation goes through the registry under a single lock, which keeps the
// non-negative balance invariant under concurrent callers.
//
// All monetary values use shopspring/decimal — never float64 for money.
package wallet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockyard/auction-engine/internal/model"
)

var (
	// ErrDuplicateAccount is returned when registering an id that exists.
	ErrDuplicateAccount = errors.New("wallet: account already exists")

	// ErrAccountNotFound is returned when an id is not registered.
	ErrAccountNotFound = errors.New("wallet: account not found")

	// ErrInsufficientFunds is returned when a debit or transfer exceeds the
	// payer's balance. The operation has no partial effect.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
)

// Registry holds all accounts. One RWMutex guards every balance; transfers
// are a single critical section so no partial debit/credit is observable.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	order    []string // registration order, for stable listings
}

// NewRegistry creates an empty account registry.
func NewRegistry() *Registry {
	return &Registry{
		accounts: make(map[string]*model.Account),
	}
}

// Register creates an account with the given starting balance and a freshly
// generated keypair. The keypair is never used to sign; it mirrors the
// wallet identity scheme only.
func (r *Registry) Register(id string, initial decimal.Decimal) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrDuplicateAccount, id)
	}

	priv, pub := newKeypair()
	acct := &model.Account{
		ID:         id,
		PrivateKey: priv,
		PublicKey:  pub,
		Balance:    initial,
		CreatedAt:  time.Now().UTC(),
	}
	r.accounts[id] = acct
	r.order = append(r.order, id)
	return *acct, nil
}

// Get returns a copy of the account.
func (r *Registry) Get(id string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.accounts[id]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return *acct, nil
}

// Balance returns the account's current balance.
func (r *Registry) Balance(id string) (decimal.Decimal, error) {
	acct, err := r.Get(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return acct.Balance, nil
}

// List returns copies of all accounts in registration order.
func (r *Registry) List() []model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.accounts[id])
	}
	return out
}

// Count returns the number of registered accounts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

// IDs returns all account ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Debit subtracts amount from the account. Fails with ErrInsufficientFunds
// if amount exceeds the balance; the balance is untouched on failure.
func (r *Registry) Debit(id string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.debitLocked(id, amount)
}

// Credit adds amount to the account. No upper bound.
func (r *Registry) Credit(id string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creditLocked(id, amount)
}

// TransferWithSplit atomically debits payer by amount, credits payee with
// amount*(1-rebateRate), and credits rebatee with amount*rebateRate. Fails
// wholesale, with no partial effect, if payer's balance is insufficient or
// any account is missing. Adjudication uses this with the producer as payee at
// 90% and the winning bidder as rebatee receiving the 10% bonus.
func (r *Registry) TransferWithSplit(payer, payee, rebatee string, amount, rebateRate decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range []string{payer, payee, rebatee} {
		if _, ok := r.accounts[id]; !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
	}

	rebate := amount.Mul(rebateRate)
	share := amount.Sub(rebate)

	if err := r.debitLocked(payer, amount); err != nil {
		return err
	}
	// Both accounts were checked above; credits cannot fail now.
	r.creditLocked(payee, share)
	r.creditLocked(rebatee, rebate)
	return nil
}

func (r *Registry) debitLocked(id string, amount decimal.Decimal) error {
	acct, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if amount.GreaterThan(acct.Balance) {
		return fmt.Errorf("%w: %s has %s, needs %s",
			ErrInsufficientFunds, id, acct.Balance, amount)
	}
	acct.Balance = acct.Balance.Sub(amount)
	return nil
}

func (r *Registry) creditLocked(id string, amount decimal.Decimal) error {
	acct, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	acct.Balance = acct.Balance.Add(amount)
	return nil
}

// newKeypair generates a random 16-byte private key and a SHA-256 derived
// public key, both hex encoded.
func newKeypair() (priv, pub string) {
	raw := make([]byte, 16)
	rand.Read(raw)
	priv = hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(priv))
	pub = hex.EncodeToString(sum[:])
	return priv, pub
}
