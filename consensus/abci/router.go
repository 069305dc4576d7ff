package abci

import (
	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/host"
	"github.com/NethermindEth/agent-protocol/jobs"
	"github.com/NethermindEth/agent-protocol/registry"
	"github.com/NethermindEth/agent-protocol/reputation"
)

// handler executes one decoded instruction and returns the value reported
// back in the result's Data, if any.
type handler func(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error)

var routes = map[core.TxType]handler{
	core.TxRegisterAgent: func(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error) {
		var p core.RegisterAgentPayload
		if err := tx.DecodePayload(&p); err != nil {
			return nil, err
		}
		addr, _, err := registry.Register(hc, signer, p)
		return AddressResult{Address: addr}, err
	},
	core.TxInvokeAgent: func(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error) {
		var p core.InvokeAgentPayload
		if err := tx.DecodePayload(&p); err != nil {
			return nil, err
		}
		addr, _, err := jobs.Invoke(hc, signer, p)
		return AddressResult{Address: addr}, err
	},
	core.TxUpdateJob: func(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error) {
		var p core.UpdateJobPayload
		if err := tx.DecodePayload(&p); err != nil {
			return nil, err
		}
		_, err := jobs.Complete(hc, signer, p)
		return nil, err
	},
	core.TxReleasePayment: releaseWith(jobs.Release),
	core.TxAutoRelease:    releaseWith(jobs.AutoRelease),
	core.TxCancelJob:      jobWith(jobs.Cancel),
	core.TxRaiseDispute:   jobWith(jobs.RaiseDispute),
	core.TxResolveDispute: jobWith(jobs.ResolveDisputeByTimeout),
	core.TxDelegateTask: func(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error) {
		var p core.DelegateTaskPayload
		if err := tx.DecodePayload(&p); err != nil {
			return nil, err
		}
		addr, _, err := jobs.Delegate(hc, signer, p)
		return AddressResult{Address: addr}, err
	},
	core.TxRateAgent: func(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error) {
		var p core.RateAgentPayload
		if err := tx.DecodePayload(&p); err != nil {
			return nil, err
		}
		avg, err := reputation.Rate(hc, signer, p)
		return RatingResult{AverageX100: avg}, err
	},
}

// AddressResult is returned by instructions that create a record.
type AddressResult struct {
	Address core.Address `json:"address"`
}

type RatingResult struct {
	AverageX100 uint64 `json:"average_x100"`
}

func releaseWith(fn func(*host.Context, core.Address, core.ReleasePayload) error) handler {
	return func(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error) {
		var p core.ReleasePayload
		if err := tx.DecodePayload(&p); err != nil {
			return nil, err
		}
		return nil, fn(hc, signer, p)
	}
}

func jobWith(fn func(*host.Context, core.Address, core.JobPayload) error) handler {
	return func(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error) {
		var p core.JobPayload
		if err := tx.DecodePayload(&p); err != nil {
			return nil, err
		}
		return nil, fn(hc, signer, p)
	}
}

func route(hc *host.Context, signer core.Address, tx *core.Transaction) (any, error) {
	h, ok := routes[tx.Type]
	if !ok {
		return nil, errors.Wrapf(core.ErrUnknownTransaction, "%q", tx.Type)
	}
	return h(hc, signer, tx)
}
