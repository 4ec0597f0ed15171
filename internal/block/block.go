package block

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eigerco/blocksim/internal/crypto"
)

// Block is an immutable batch of logs drained from the pending buffer.
type Block struct {
	Height  uint64       `json:"height"`
	Hash    crypto.Hash  `json:"block_hash"`
	Logs    []LogPayload `json:"logs"`
	MinedAt time.Time    `json:"mined_at"`
}

// hashInput is the part of a block its hash is derived from. Blocks do not
// reference their predecessor.
type hashInput struct {
	Height  uint64       `json:"height"`
	MinedAt int64        `json:"mined_at"`
	Logs    []LogPayload `json:"logs"`
}

// ComputeHash derives the block hash from height, mining time and logs, so
// identical inputs always produce the same hash.
func (b Block) ComputeHash() (crypto.Hash, error) {
	data, err := json.Marshal(hashInput{
		Height:  b.Height,
		MinedAt: b.MinedAt.UnixNano(),
		Logs:    b.Logs,
	})
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("encode block for hashing: %w", err)
	}
	return crypto.HashData(data), nil
}

// New builds a block and fills in its hash.
func New(height uint64, logs []LogPayload, minedAt time.Time) (Block, error) {
	b := Block{
		Height:  height,
		Logs:    logs,
		MinedAt: minedAt.UTC(),
	}
	hash, err := b.ComputeHash()
	if err != nil {
		return Block{}, err
	}
	b.Hash = hash
	return b, nil
}

func (b Block) Bytes() ([]byte, error) {
	return json.Marshal(b)
}

func BlockFromBytes(data []byte) (Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return Block{}, fmt.Errorf("decode block: %w", err)
	}
	return b, nil
}
