package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Block is one sealed entry in the chain. Hash always equals the digest of
// the other five fields, and for appended blocks it carries the difficulty
// prefix. Blocks are never mutated or removed once appended.
type Block struct {
	Index     int    `json:"index"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"` // unix nanoseconds
	PrevHash  string `json:"previous_hash"`
	Nonce     int    `json:"nonce"`
	Hash      string `json:"hash"`
}

// envelope fixes the canonical field order for hashing. Struct fields
// serialize in declaration order, and encoding/json sorts map keys, so two
// equal payloads always produce the same bytes regardless of how the payload
// map was built.
type envelope struct {
	Index     int    `json:"index"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
	PrevHash  string `json:"previous_hash"`
	Nonce     int    `json:"nonce"`
}

// ComputeHash returns the SHA-256 digest of the block's canonical encoding
// as a lowercase hex string. The stored Hash field is not part of the input.
func (b Block) ComputeHash() (string, error) {
	data, err := json.Marshal(envelope{
		Index:     b.Index,
		Payload:   b.Payload,
		Timestamp: b.Timestamp,
		PrevHash:  b.PrevHash,
		Nonce:     b.Nonce,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
