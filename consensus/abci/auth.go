package abci

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/store"
)

const noncePrefix = "nonce/"

func nonceKey(signer core.Address) []byte {
	return append([]byte(noncePrefix), signer[:]...)
}

// authenticate decodes a raw transaction and returns it with its verified signer.
func authenticate(raw []byte) (*core.Transaction, core.Address, error) {
	tx, err := core.DecodeTransaction(raw)
	if err != nil {
		return nil, core.Address{}, err
	}
	signer, err := tx.Verify()
	if err != nil {
		return tx, core.Address{}, err
	}
	return tx, signer, nil
}

// Nonce returns the last nonce spent by signer.
func Nonce(kv store.KV, signer core.Address) (uint64, error) {
	bz, err := kv.Get(nonceKey(signer))
	if err != nil {
		return 0, err
	}
	if len(bz) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(bz), nil
}

// checkNonceAhead accepts any nonce past the last committed one, so a client
// can queue several transactions within one block.
func checkNonceAhead(kv store.KV, signer core.Address, nonce uint64) error {
	last, err := Nonce(kv, signer)
	if err != nil {
		return err
	}
	if nonce <= last {
		return errors.Wrapf(core.ErrInvalidNonce, "nonce %d already used, last is %d", nonce, last)
	}
	return nil
}

// spendNonce requires the signer's next nonce and records it.
func spendNonce(kv store.KV, signer core.Address, nonce uint64) error {
	last, err := Nonce(kv, signer)
	if err != nil {
		return err
	}
	if nonce != last+1 {
		return errors.Wrapf(core.ErrInvalidNonce, "expected nonce %d, got %d", last+1, nonce)
	}
	return kv.Set(nonceKey(signer), binary.BigEndian.AppendUint64(nil, nonce))
}
