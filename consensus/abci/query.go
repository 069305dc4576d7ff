package abci

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	types "github.com/cometbft/cometbft/abci/types"

	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/escrow"
	"github.com/NethermindEth/agent-protocol/jobs"
	"github.com/NethermindEth/agent-protocol/registry"
	"github.com/NethermindEth/agent-protocol/reputation"
)

// Query paths.
const (
	QueryAgent   = "/agent/"
	QueryAgents  = "/agents"
	QueryJob     = "/job/"
	QueryRating  = "/rating/"
	QueryBalance = "/balance/"
	QueryNonce   = "/nonce/"
)

// JobView is a job as seen by a query: the live record, or the receipt it
// left when it closed.
type JobView struct {
	Address core.Address     `json:"address"`
	Job     *core.Job        `json:"job,omitempty"`
	Receipt *core.JobReceipt `json:"receipt,omitempty"`
}

type AgentView struct {
	Address core.Address      `json:"address"`
	Profile core.AgentProfile `json:"profile"`
	Rating  string            `json:"rating"`
}

type BalanceView struct {
	Address core.Address `json:"address"`
	Balance uint64       `json:"balance"`
}

type NonceView struct {
	Address core.Address `json:"address"`
	Nonce   uint64       `json:"nonce"`
}

// Query answers read requests against the last committed state.
func (app *Application) Query(_ context.Context, req *types.RequestQuery) (*types.ResponseQuery, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()

	height := app.store.Height()
	v, err := app.query(req.Path)
	if err != nil {
		return &types.ResponseQuery{Code: core.Code(err), Log: err.Error(), Codespace: Codespace, Height: height}, nil
	}
	bz, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", req.Path)
	}
	return &types.ResponseQuery{Code: types.CodeTypeOK, Key: []byte(req.Path), Value: bz, Height: height}, nil
}

func (app *Application) query(path string) (any, error) {
	kv := app.store.Committed()
	switch {
	case path == QueryAgents:
		entries, err := registry.List(app.store)
		if entries == nil {
			entries = []registry.CatalogEntry{}
		}
		return entries, err

	case strings.HasPrefix(path, QueryAgent):
		owner, err := core.ParseAddress(strings.TrimPrefix(path, QueryAgent))
		if err != nil {
			return nil, err
		}
		addr, profile, err := registry.GetByOwner(kv, owner)
		if err != nil {
			return nil, err
		}
		return AgentView{Address: addr, Profile: *profile, Rating: registry.RatingLabel(profile)}, nil

	case strings.HasPrefix(path, QueryJob):
		addr, err := core.ParseAddress(strings.TrimPrefix(path, QueryJob))
		if err != nil {
			return nil, err
		}
		job, err := jobs.Load(kv, addr)
		if err == nil {
			return JobView{Address: addr, Job: job}, nil
		}
		if !errors.Is(err, core.ErrJobNotFound) {
			return nil, err
		}
		receipt, err := jobs.LoadReceipt(kv, addr)
		if err != nil {
			return nil, err
		}
		return JobView{Address: addr, Receipt: receipt}, nil

	case strings.HasPrefix(path, QueryRating):
		job, err := core.ParseAddress(strings.TrimPrefix(path, QueryRating))
		if err != nil {
			return nil, err
		}
		return reputation.Get(kv, job)

	case strings.HasPrefix(path, QueryBalance):
		addr, err := core.ParseAddress(strings.TrimPrefix(path, QueryBalance))
		if err != nil {
			return nil, err
		}
		bal, err := escrow.NewLedger(kv).Balance(addr)
		return BalanceView{Address: addr, Balance: bal}, err

	case strings.HasPrefix(path, QueryNonce):
		addr, err := core.ParseAddress(strings.TrimPrefix(path, QueryNonce))
		if err != nil {
			return nil, err
		}
		n, err := Nonce(kv, addr)
		return NonceView{Address: addr, Nonce: n}, err
	}
	return nil, errors.Wrapf(core.ErrNotFound, "unknown query path %q", path)
}
