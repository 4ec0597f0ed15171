package ledger

import (
	"errors"
	"fmt"

	"github.com/eigerco/blocksim/internal/block"
	"github.com/eigerco/blocksim/internal/clock"
	"github.com/eigerco/blocksim/internal/crypto"
	"github.com/eigerco/blocksim/internal/store"
	"github.com/eigerco/blocksim/pkg/log"
)

var ErrEmptyLog = errors.New("log has no entries")

// Ledger buffers accepted logs and mines them into blocks on demand.
// It is not safe for concurrent use.
type Ledger struct {
	chain   *store.Chain
	clock   clock.Clock
	pending []block.LogPayload

	height uint64 // number of mined blocks
	latest crypto.Hash
}

func New(chain *store.Chain, clk clock.Clock) *Ledger {
	return &Ledger{chain: chain, clock: clk}
}

// Submit appends the payload to the pending buffer. Payloads that could not
// be encoded into a block are refused so they can never stall mining.
// Staleness is not checked here.
func (l *Ledger) Submit(payload block.LogPayload) error {
	if len(payload.Entries) == 0 {
		return ErrEmptyLog
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	l.pending = append(l.pending, payload)
	return nil
}

// Mine drains the pending buffer into a new block. It returns false when
// there is nothing to mine. On a storage error the buffer is kept intact.
func (l *Ledger) Mine() (block.Block, bool, error) {
	if len(l.pending) == 0 {
		return block.Block{}, false, nil
	}

	logs := make([]block.LogPayload, len(l.pending))
	copy(logs, l.pending)

	b, err := block.New(l.height, logs, l.clock.Now())
	if err != nil {
		return block.Block{}, false, fmt.Errorf("build block: %w", err)
	}
	if err := l.chain.PutBlock(b); err != nil {
		return block.Block{}, false, fmt.Errorf("store block %d: %w", b.Height, err)
	}

	l.pending = nil
	l.height++
	l.latest = b.Hash

	log.Ledger.Info().
		Uint64("height", b.Height).
		Str("block_hash", b.Hash.String()).
		Int("logs", len(b.Logs)).
		Msg("block mined")
	return b, true, nil
}

// LatestBlockHash returns the hash of the most recent block, or false if
// nothing has been mined yet.
func (l *Ledger) LatestBlockHash() (crypto.Hash, bool) {
	if l.height == 0 {
		return crypto.Hash{}, false
	}
	return l.latest, true
}

// Height is the number of mined blocks.
func (l *Ledger) Height() uint64 {
	return l.height
}

func (l *Ledger) PendingCount() int {
	return len(l.pending)
}

// Pending returns a copy of the pending buffer.
func (l *Ledger) Pending() []block.LogPayload {
	out := make([]block.LogPayload, len(l.pending))
	copy(out, l.pending)
	return out
}

func (l *Ledger) Block(hash crypto.Hash) (block.Block, error) {
	return l.chain.GetBlock(hash)
}

func (l *Ledger) Blocks() ([]block.Block, error) {
	return l.chain.Blocks()
}
