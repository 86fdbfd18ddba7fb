// Package ledger implements the append-only, hash-chained block ledger with
// proof-of-work sealing. Appending is a single-writer critical section:
// blocks chain in strict index order, so at most one sealing runs at a time.
//
// Sealing terminates almost surely (uniform hash output) but has no formal
// upper bound; callers should treat Append as a potentially long-running
// synchronous computation. Cancelling the context is the only way to bound it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultDifficulty is the number of leading zero hex characters a sealed
// block's hash must carry (~16^4 expected trials).
const DefaultDifficulty = 4

// ErrSealingInterrupted is returned when the context is cancelled before a
// nonce satisfying the difficulty predicate is found. The chain is unchanged.
var ErrSealingInterrupted = errors.New("ledger: sealing interrupted")

// ctxCheckInterval is how many nonce trials run between context checks.
const ctxCheckInterval = 4096

// Chain is an append-only sequence of sealed blocks. The genesis block is
// created once at construction with PrevHash "0" and a sentinel payload; it
// is the only block exempt from the difficulty predicate.
type Chain struct {
	mu         sync.RWMutex
	difficulty int
	prefix     string
	blocks     []Block
}

// New creates a chain holding only the genesis block. A difficulty below 1
// is clamped to 1.
func New(difficulty int) *Chain {
	if difficulty < 1 {
		difficulty = 1
	}
	c := &Chain{
		difficulty: difficulty,
		prefix:     strings.Repeat("0", difficulty),
	}

	genesis := Block{
		Index:     0,
		Payload:   map[string]string{"info": "genesis"},
		Timestamp: time.Now().UTC().UnixNano(),
		PrevHash:  "0",
	}
	// The genesis payload is a fixed map of strings; hashing cannot fail.
	genesis.Hash, _ = genesis.ComputeHash()
	c.blocks = []Block{genesis}
	return c
}

// Difficulty returns the chain's leading-zero prefix length.
func (c *Chain) Difficulty() int { return c.difficulty }

// Append seals a new block carrying payload and appends it to the chain.
// It increments the nonce and recomputes the digest until the hash carries
// the difficulty prefix, checking ctx every few thousand trials. Payload must
// be JSON-serializable.
func (c *Chain) Append(ctx context.Context, payload any) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.blocks[len(c.blocks)-1]
	block := Block{
		Index:     last.Index + 1,
		Payload:   payload,
		Timestamp: time.Now().UTC().UnixNano(),
		PrevHash:  last.Hash,
	}

	for trials := 0; ; trials++ {
		if trials%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Block{}, fmt.Errorf("%w: %w", ErrSealingInterrupted, err)
			}
		}
		hash, err := block.ComputeHash()
		if err != nil {
			return Block{}, fmt.Errorf("ledger: hash payload: %w", err)
		}
		if strings.HasPrefix(hash, c.prefix) {
			block.Hash = hash
			break
		}
		block.Nonce++
	}

	c.blocks = append(c.blocks, block)
	return block, nil
}

// LastBlock returns a copy of the chain's tail.
func (c *Chain) LastBlock() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Blocks returns a copy of the full chain in index order.
func (c *Chain) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Length returns the number of blocks including genesis.
func (c *Chain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Verify re-checks every stored hash and the chain linkage.
func (c *Chain) Verify() error {
	return Verify(c.Blocks(), c.difficulty)
}

// Verify checks that blocks form a valid chain: each stored hash reproduces
// from the block's fields, every block past genesis links to its predecessor
// and satisfies the difficulty predicate, and genesis has PrevHash "0".
func Verify(blocks []Block, difficulty int) error {
	if len(blocks) == 0 {
		return errors.New("ledger: empty chain")
	}
	if blocks[0].PrevHash != "0" {
		return fmt.Errorf("ledger: genesis previous hash %q, want \"0\"", blocks[0].PrevHash)
	}

	prefix := strings.Repeat("0", difficulty)
	for i, b := range blocks {
		got, err := b.ComputeHash()
		if err != nil {
			return fmt.Errorf("ledger: block %d: %w", i, err)
		}
		if got != b.Hash {
			return fmt.Errorf("ledger: block %d hash mismatch", i)
		}
		if i == 0 {
			continue
		}
		if b.Index != blocks[i-1].Index+1 {
			return fmt.Errorf("ledger: block %d index out of order", i)
		}
		if b.PrevHash != blocks[i-1].Hash {
			return fmt.Errorf("ledger: block %d broken linkage", i)
		}
		if !strings.HasPrefix(b.Hash, prefix) {
			return fmt.Errorf("ledger: block %d does not meet difficulty %d", i, difficulty)
		}
	}
	return nil
}
