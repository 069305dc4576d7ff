package abci

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/escrow"
	"github.com/NethermindEth/agent-protocol/store"
)

var rentKey = []byte("params/rent")

// GenesisState is the application state carried in the genesis file.
type GenesisState struct {
	Rent     *escrow.Rent     `json:"rent,omitempty"`
	Accounts []GenesisAccount `json:"accounts"`
}

type GenesisAccount struct {
	Address core.Address `json:"address"`
	Balance uint64       `json:"balance"`
}

// ParseGenesis decodes app_state. Empty state means default rent and no accounts.
func ParseGenesis(bz []byte) (*GenesisState, error) {
	var gen GenesisState
	if len(bz) == 0 {
		return &gen, nil
	}
	if err := json.Unmarshal(bz, &gen); err != nil {
		return nil, errors.Wrap(err, "decode genesis app state")
	}
	return &gen, nil
}

// Apply mints the genesis balances and stores the rent parameters.
func (g *GenesisState) Apply(kv store.KV) (escrow.Rent, error) {
	rent := escrow.DefaultRent
	if g.Rent != nil {
		rent = *g.Rent
	}
	bz, err := store.Marshal(rent)
	if err != nil {
		return rent, errors.Wrap(err, "encode rent")
	}
	if err := kv.Set(rentKey, bz); err != nil {
		return rent, err
	}

	ledger := escrow.NewLedger(kv)
	seen := make(map[core.Address]bool, len(g.Accounts))
	for _, acc := range g.Accounts {
		if seen[acc.Address] {
			return rent, errors.Newf("duplicate genesis account %s", acc.Address)
		}
		seen[acc.Address] = true
		if err := ledger.Mint(acc.Address, acc.Balance); err != nil {
			return rent, errors.Wrapf(err, "genesis account %s", acc.Address)
		}
	}
	return rent, nil
}

func loadRent(kv store.KV) (escrow.Rent, error) {
	bz, err := kv.Get(rentKey)
	if err != nil {
		return escrow.Rent{}, err
	}
	if bz == nil {
		return escrow.DefaultRent, nil
	}
	var rent escrow.Rent
	if err := store.Unmarshal(bz, &rent); err != nil {
		return rent, errors.Wrap(err, "decode rent")
	}
	return rent, nil
}
