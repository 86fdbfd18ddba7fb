// Package batch implements the production-lot registry. Batches are
// immutable once recorded and referenced by their index.
package batch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stockyard/auction-engine/internal/model"
)

// ErrBatchNotFound is returned for an index outside the registry.
var ErrBatchNotFound = errors.New("batch: not found")

// Registry is an append-only list of recorded batches.
type Registry struct {
	mu      sync.RWMutex
	batches []model.Batch
}

// NewRegistry creates an empty batch registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Record appends a batch and returns its index. Quantity is pre-validated
// as a positive integer by the caller.
func (r *Registry) Record(producer string, quantity int64, breed, location string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches = append(r.batches, model.Batch{
		Producer:  producer,
		Quantity:  quantity,
		Breed:     breed,
		Location:  location,
		CreatedAt: time.Now().UTC(),
	})
	return len(r.batches) - 1
}

// Get returns the batch at index.
func (r *Registry) Get(index int) (model.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.batches) {
		return model.Batch{}, fmt.Errorf("%w: index %d", ErrBatchNotFound, index)
	}
	return r.batches[index], nil
}

// List returns all batches in recording order.
func (r *Registry) List() []model.Batch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

// Count returns the number of recorded batches.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}
