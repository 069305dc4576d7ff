// Package host carries what the execution substrate hands to a protocol
// handler: the transaction's write cache, the trusted block clock, rent
// parameters and the event buffer.
package host

import (
	"github.com/cometbft/cometbft/libs/log"

	"github.com/NethermindEth/agent-protocol/communication"
	"github.com/NethermindEth/agent-protocol/escrow"
	"github.com/NethermindEth/agent-protocol/store"
)

// Context is valid for a single transaction.
type Context struct {
	KV     store.KV
	Height int64
	// Now is the block time in unix seconds.
	Now    int64
	Rent   escrow.Rent
	Events *communication.Buffer
	Logger log.Logger
}

func NewContext(kv store.KV, height, now int64, rent escrow.Rent, logger log.Logger) *Context {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Context{
		KV:     kv,
		Height: height,
		Now:    now,
		Rent:   rent,
		Events: &communication.Buffer{},
		Logger: logger,
	}
}

func (c *Context) Ledger() *escrow.Ledger { return escrow.NewLedger(c.KV) }

func (c *Context) Emit(ev communication.Event) { c.Events.Emit(ev) }

// MinimumBalance is the standing balance for a record of size bytes.
func (c *Context) MinimumBalance(size uint64) (uint64, error) {
	return c.Rent.MinimumBalance(size)
}
