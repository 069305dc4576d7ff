package jobs

import (
	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/communication"
	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/host"
)

// Delegate carves amount out of a parent job's escrow into a new child job
// for a sub-agent. The delegating agent becomes the child's client and pays
// the child account's standing balance.
func Delegate(hc *host.Context, signer core.Address, p core.DelegateTaskPayload) (core.Address, *core.Job, error) {
	parent, err := Load(hc.KV, p.ParentJob)
	if err != nil {
		return core.Address{}, nil, err
	}
	if signer != parent.Agent {
		return core.Address{}, nil, errors.Wrapf(core.ErrUnauthorized, "%s is not the agent of job %s", signer, p.ParentJob)
	}
	if parent.Status != core.JobPending && parent.Status != core.JobInProgress {
		return core.Address{}, nil, errors.Wrapf(core.ErrInvalidJobStatus, "job %s is %s", p.ParentJob, parent.Status)
	}
	sub, err := activeAgent(hc, p.SubAgentProfile)
	if err != nil {
		return core.Address{}, nil, err
	}
	if err := validateDescription(p.Description); err != nil {
		return core.Address{}, nil, err
	}
	if p.Amount == 0 {
		return core.Address{}, nil, core.ErrInvalidAmount
	}
	if parent.ActiveChildren >= core.MaxActiveChildren {
		return core.Address{}, nil, errors.Wrapf(core.ErrTooManyDelegations, "job %s", p.ParentJob)
	}
	if p.Amount > parent.Escrow {
		return core.Address{}, nil, errors.Wrapf(core.ErrInsufficientEscrow, "job %s holds %d, delegating %d", p.ParentJob, parent.Escrow, p.Amount)
	}
	if err := checkCustody(hc, p.ParentJob, parent); err != nil {
		return core.Address{}, nil, err
	}

	parentAddr := p.ParentJob
	childAddr := core.DeriveJobAddress(signer, p.SubAgentProfile, p.Seed)
	child := &core.Job{
		Client:        signer,
		Agent:         sub.Owner,
		Escrow:        p.Amount,
		Status:        core.JobPending,
		Description:   p.Description,
		ParentJob:     &parentAddr,
		CreatedAt:     hc.Now,
		TimestampSeed: p.Seed,
	}
	if err := open(hc, signer, childAddr, child, 0); err != nil {
		return core.Address{}, nil, err
	}
	rent, err := jobRent(hc)
	if err != nil {
		return core.Address{}, nil, err
	}
	if err := hc.Ledger().Transfer(p.ParentJob, childAddr, p.Amount, rent); err != nil {
		if errors.Is(err, core.ErrInsufficientFunds) {
			return core.Address{}, nil, errors.Wrapf(core.ErrInsufficientEscrow, "job %s must keep %d", p.ParentJob, rent)
		}
		return core.Address{}, nil, err
	}

	parent.Escrow -= p.Amount
	parent.ActiveChildren++
	if parent.Status == core.JobPending {
		parent.Status = core.JobInProgress
	}
	if err := save(hc.KV, p.ParentJob, parent); err != nil {
		return core.Address{}, nil, err
	}

	hc.Emit(communication.JobDelegated{
		ParentJob:       p.ParentJob,
		ChildJob:        childAddr,
		DelegatingAgent: signer,
		SubAgent:        sub.Owner,
		Amount:          p.Amount,
	})
	return childAddr, child, nil
}

// reconcileParent decrements the parent's outstanding-children counter when
// a child job is paid out. A parent that has already closed has nothing
// left to reconcile.
func reconcileParent(hc *host.Context, p core.ReleasePayload, job *core.Job) error {
	if job.ParentJob == nil {
		if p.ParentJob != nil {
			return errors.Wrapf(core.ErrParentJobMismatch, "job %s has no parent", p.Job)
		}
		return nil
	}
	parentAddr := *job.ParentJob
	if p.ParentJob != nil && *p.ParentJob != parentAddr {
		return errors.Wrapf(core.ErrParentJobMismatch, "job %s belongs to %s, not %s", p.Job, parentAddr, *p.ParentJob)
	}

	parent, err := Load(hc.KV, parentAddr)
	if errors.Is(err, core.ErrJobNotFound) {
		if _, rerr := LoadReceipt(hc.KV, parentAddr); rerr != nil {
			return errors.Wrapf(core.ErrParentJobMismatch, "parent %s of job %s does not exist", parentAddr, p.Job)
		}
		hc.Logger.Info("parent already closed", "job", p.Job, "parent", parentAddr)
		return nil
	}
	if err != nil {
		return err
	}
	if parent.ActiveChildren == 0 {
		return errors.Wrapf(core.ErrChildCounter, "parent %s has no active children", parentAddr)
	}
	parent.ActiveChildren--
	return save(hc.KV, parentAddr, parent)
}
