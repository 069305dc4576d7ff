// Package escrow moves native value units between custody accounts. It holds
// no business rules: every movement is a checked debit/credit pair.
package escrow

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"

	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/store"
)

const balancePrefix = "bal/"

func balanceKey(addr core.Address) []byte {
	return append([]byte(balancePrefix), addr[:]...)
}

// Ledger reads and writes balances through a transaction's KV.
type Ledger struct {
	kv store.KV
}

func NewLedger(kv store.KV) *Ledger {
	return &Ledger{kv: kv}
}

// Balance returns the units held by addr. Unknown accounts hold zero.
func (l *Ledger) Balance(addr core.Address) (uint64, error) {
	bz, err := l.kv.Get(balanceKey(addr))
	if err != nil {
		return 0, errors.Wrapf(err, "balance of %s", addr)
	}
	if bz == nil {
		return 0, nil
	}
	if len(bz) != 8 {
		return 0, errors.Newf("corrupt balance record for %s", addr)
	}
	return binary.BigEndian.Uint64(bz), nil
}

func (l *Ledger) setBalance(addr core.Address, v uint64) error {
	if v == 0 {
		return l.kv.Delete(balanceKey(addr))
	}
	return l.kv.Set(balanceKey(addr), binary.BigEndian.AppendUint64(nil, v))
}

// Mint credits units out of thin air. Only genesis uses it.
func (l *Ledger) Mint(addr core.Address, amount uint64) error {
	bal, err := l.Balance(addr)
	if err != nil {
		return err
	}
	next, ok := Add(bal, amount)
	if !ok {
		return errors.Wrapf(core.ErrOverflow, "mint %d to %s", amount, addr)
	}
	return l.setBalance(addr, next)
}

// Transfer debits amount from `from` and credits it to `to` as one step. The
// source must keep at least `keep` units afterwards. The destination gains
// exactly what the source loses; any other outcome is refused.
func (l *Ledger) Transfer(from, to core.Address, amount, keep uint64) error {
	fromBal, err := l.Balance(from)
	if err != nil {
		return err
	}
	remaining, ok := Sub(fromBal, amount)
	if !ok || remaining < keep {
		return errors.Wrapf(core.ErrInsufficientFunds, "%s holds %d, moving %d must leave %d", from, fromBal, amount, keep)
	}
	if from == to || amount == 0 {
		return nil
	}
	toBal, err := l.Balance(to)
	if err != nil {
		return err
	}
	credited, ok := Add(toBal, amount)
	if !ok {
		return errors.Wrapf(core.ErrOverflow, "credit %d to %s", amount, to)
	}

	before := new(uint256.Int).Add(uint256.NewInt(fromBal), uint256.NewInt(toBal))
	after := new(uint256.Int).Add(uint256.NewInt(remaining), uint256.NewInt(credited))
	if !before.Eq(after) || credited-toBal != fromBal-remaining {
		return errors.Wrapf(core.ErrCustodyMismatch, "transfer %s -> %s not conserved", from, to)
	}

	if err := l.setBalance(from, remaining); err != nil {
		return err
	}
	return l.setBalance(to, credited)
}

// Sweep moves the entire balance of `from` to `to`, leaving `from` empty.
func (l *Ledger) Sweep(from, to core.Address) (uint64, error) {
	bal, err := l.Balance(from)
	if err != nil {
		return 0, err
	}
	return bal, l.Transfer(from, to, bal, 0)
}
