// Package registry owns AgentProfile records.
package registry

import (
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/communication"
	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/host"
	"github.com/NethermindEth/agent-protocol/store"
)

const agentPrefix = "agent/"

// NewAgentLabel is shown in the catalog for agents nobody has rated yet.
const NewAgentLabel = "New"

func agentKey(profile core.Address) []byte {
	return append([]byte(agentPrefix), profile[:]...)
}

// Register creates the owner's agent profile. The owner funds the profile
// account's standing balance.
func Register(hc *host.Context, owner core.Address, p core.RegisterAgentPayload) (core.Address, *core.AgentProfile, error) {
	switch {
	case p.Name == "":
		return core.Address{}, nil, core.ErrEmptyName
	case len(p.Name) > core.MaxAgentNameLen:
		return core.Address{}, nil, core.ErrNameTooLong
	case len(p.Description) > core.MaxAgentDescriptionLen:
		return core.Address{}, nil, core.ErrDescriptionTooLong
	case p.Price == 0:
		return core.Address{}, nil, core.ErrInvalidPrice
	}

	addr := core.DeriveAgentAddress(owner)
	existing, err := hc.KV.Get(agentKey(addr))
	if err != nil {
		return core.Address{}, nil, err
	}
	if existing != nil {
		return core.Address{}, nil, errors.Wrapf(core.ErrAgentExists, "owner %s", owner)
	}

	rent, err := hc.MinimumBalance(core.AgentProfileRecordSize)
	if err != nil {
		return core.Address{}, nil, err
	}
	if err := hc.Ledger().Transfer(owner, addr, rent, 0); err != nil {
		return core.Address{}, nil, errors.Wrap(err, "fund agent profile")
	}

	profile := &core.AgentProfile{
		Owner:        owner,
		Name:         p.Name,
		Description:  p.Description,
		Capabilities: p.Capabilities,
		Price:        p.Price,
		IsActive:     true,
		CreatedAt:    hc.Now,
	}
	if err := Save(hc.KV, addr, profile); err != nil {
		return core.Address{}, nil, err
	}

	hc.Emit(communication.AgentRegistered{
		Agent: addr,
		Owner: owner,
		Name:  p.Name,
		Price: p.Price,
	})
	hc.Logger.Debug("agent registered", "agent", addr, "owner", owner, "capabilities", p.Capabilities)
	return addr, profile, nil
}

// Get loads the profile stored at addr.
func Get(kv store.KV, addr core.Address) (*core.AgentProfile, error) {
	bz, err := kv.Get(agentKey(addr))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrapf(core.ErrAgentNotFound, "profile %s", addr)
	}
	var profile core.AgentProfile
	if err := store.Unmarshal(bz, &profile); err != nil {
		return nil, errors.Wrapf(err, "decode profile %s", addr)
	}
	return &profile, nil
}

// GetByOwner loads the profile registered by owner.
func GetByOwner(kv store.KV, owner core.Address) (core.Address, *core.AgentProfile, error) {
	addr := core.DeriveAgentAddress(owner)
	profile, err := Get(kv, addr)
	return addr, profile, err
}

func Save(kv store.KV, addr core.Address, profile *core.AgentProfile) error {
	bz, err := store.Marshal(profile)
	if err != nil {
		return errors.Wrapf(err, "encode profile %s", addr)
	}
	return kv.Set(agentKey(addr), bz)
}

// Iterator walks committed records under a key prefix.
type Iterator interface {
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// CatalogEntry is an agent as listed to clients.
type CatalogEntry struct {
	Address      core.Address      `json:"address"`
	Profile      core.AgentProfile `json:"profile"`
	Capabilities string            `json:"capability_names"`
	Rating       string            `json:"rating"`
}

// List returns every registered agent in address order.
func List(it Iterator) ([]CatalogEntry, error) {
	var (
		entries []CatalogEntry
		decErr  error
	)
	err := it.Iterate([]byte(agentPrefix), func(key, value []byte) bool {
		addr, err := core.AddressFromBytes(key[len(agentPrefix):])
		if err != nil {
			decErr = err
			return false
		}
		var profile core.AgentProfile
		if err := store.Unmarshal(value, &profile); err != nil {
			decErr = errors.Wrapf(err, "decode profile %s", addr)
			return false
		}
		entries = append(entries, CatalogEntry{
			Address:      addr,
			Profile:      profile,
			Capabilities: profile.Capabilities.String(),
			Rating:       RatingLabel(&profile),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, decErr
}

// RatingLabel renders the published average with two decimals, or "New".
func RatingLabel(p *core.AgentProfile) string {
	avg, ok := p.AverageX100()
	if !ok {
		return NewAgentLabel
	}
	return formatX100(avg)
}

func formatX100(v uint64) string {
	frac := v % 100
	s := strconv.FormatUint(v/100, 10) + "."
	if frac < 10 {
		s += "0"
	}
	return s + strconv.FormatUint(frac, 10)
}
