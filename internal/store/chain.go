package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/eigerco/blocksim/internal/block"
	"github.com/eigerco/blocksim/internal/crypto"
	"github.com/eigerco/blocksim/pkg/db"
	"github.com/eigerco/blocksim/pkg/db/pebble"
)

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrBlockExists   = errors.New("block already stored")
	ErrChainClosed   = errors.New("chain store is closed")
)

// Chain stores mined blocks in a key-value store, addressed by hash and by
// height.
type Chain struct {
	db     db.KVStore
	closed atomic.Bool
}

// NewChain creates a new chain store using KVStore
func NewChain(db db.KVStore) *Chain {
	return &Chain{db: db}
}

// PutBlock stores a block and its height index entry atomically.
func (c *Chain) PutBlock(b block.Block) error {
	if c.closed.Load() {
		return ErrChainClosed
	}

	exists, err := c.db.Has(heightKey(b.Height))
	if err != nil {
		return fmt.Errorf("check height: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: height %d", ErrBlockExists, b.Height)
	}

	blockBytes, err := b.Bytes()
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}

	batch := c.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	if err := batch.Put(makeKey(prefixBlock, b.Hash[:]), blockBytes); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if err := batch.Put(heightKey(b.Height), b.Hash[:]); err != nil {
		return fmt.Errorf("store height index: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by its hash
func (c *Chain) GetBlock(hash crypto.Hash) (block.Block, error) {
	if c.closed.Load() {
		return block.Block{}, ErrChainClosed
	}

	blockBytes, err := c.db.Get(makeKey(prefixBlock, hash[:]))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return block.Block{}, ErrBlockNotFound
		}
		return block.Block{}, fmt.Errorf("get block: %w", err)
	}

	return block.BlockFromBytes(blockBytes)
}

// GetBlockByHeight retrieves the block mined at the given height.
func (c *Chain) GetBlockByHeight(height uint64) (block.Block, error) {
	if c.closed.Load() {
		return block.Block{}, ErrChainClosed
	}

	raw, err := c.db.Get(heightKey(height))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return block.Block{}, ErrBlockNotFound
		}
		return block.Block{}, fmt.Errorf("get height index: %w", err)
	}
	if len(raw) != crypto.HashSize {
		return block.Block{}, fmt.Errorf("height %d: corrupt %s entry of %d bytes", height, PrefixToString(prefixHeight), len(raw))
	}
	return c.GetBlock(crypto.Hash(raw))
}

// Blocks returns every stored block in height order.
func (c *Chain) Blocks() ([]block.Block, error) {
	if c.closed.Load() {
		return nil, ErrChainClosed
	}

	prefix := []byte{prefixHeight}
	iter, err := c.db.NewIterator(prefix, db.PrefixEnd(prefix))
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	var blocks []block.Block
	for iter.Next() {
		raw, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read height index: %w", err)
		}
		if len(raw) != crypto.HashSize {
			return nil, fmt.Errorf("corrupt %s entry of %d bytes", PrefixToString(prefixHeight), len(raw))
		}
		b, err := c.GetBlock(crypto.Hash(raw))
		if err != nil {
			return nil, fmt.Errorf("get indexed block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Close closes the chain store
func (c *Chain) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}
