// Package jobs drives the escrowed job lifecycle: creation, completion,
// release, cancellation, delegation and dispute resolution.
package jobs

import (
	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/communication"
	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/escrow"
	"github.com/NethermindEth/agent-protocol/host"
	"github.com/NethermindEth/agent-protocol/registry"
)

func validateDescription(d string) error {
	if d == "" {
		return core.ErrEmptyDescription
	}
	if len(d) > core.MaxJobDescriptionLen {
		return core.ErrDescriptionTooLong
	}
	return nil
}

// activeAgent loads an agent profile that may accept new work.
func activeAgent(hc *host.Context, profileAddr core.Address) (*core.AgentProfile, error) {
	profile, err := registry.Get(hc.KV, profileAddr)
	if err != nil {
		return nil, err
	}
	if !profile.IsActive {
		return nil, errors.Wrapf(core.ErrAgentNotActive, "agent %s", profileAddr)
	}
	return profile, nil
}

// Invoke opens a root job. The client funds the escrow and the job
// account's standing balance.
func Invoke(hc *host.Context, client core.Address, p core.InvokeAgentPayload) (core.Address, *core.Job, error) {
	if err := validateDescription(p.Description); err != nil {
		return core.Address{}, nil, err
	}
	if p.AutoReleaseSeconds != nil && *p.AutoReleaseSeconds < 0 {
		return core.Address{}, nil, core.ErrInvalidAutoRelease
	}
	profile, err := activeAgent(hc, p.AgentProfile)
	if err != nil {
		return core.Address{}, nil, err
	}
	if p.Payment < profile.Price {
		return core.Address{}, nil, errors.Wrapf(core.ErrInsufficientPayment, "payment %d below price %d", p.Payment, profile.Price)
	}

	addr := core.DeriveJobAddress(client, p.AgentProfile, p.Seed)
	job := &core.Job{
		Client:        client,
		Agent:         profile.Owner,
		Escrow:        p.Payment,
		Status:        core.JobPending,
		Description:   p.Description,
		CreatedAt:     hc.Now,
		TimestampSeed: p.Seed,
	}
	if p.AutoReleaseSeconds != nil {
		at, ok := addSeconds(hc.Now, *p.AutoReleaseSeconds)
		if !ok {
			return core.Address{}, nil, errors.Wrap(core.ErrOverflow, "auto-release deadline")
		}
		job.AutoReleaseAt = &at
	}
	if err := open(hc, client, addr, job, job.Escrow); err != nil {
		return core.Address{}, nil, err
	}

	hc.Emit(communication.JobCreated{
		Job:           addr,
		Client:        client,
		Agent:         job.Agent,
		Escrow:        job.Escrow,
		AutoReleaseAt: job.AutoReleaseAt,
	})
	return addr, job, nil
}

// open stores a new job record. payer funds the account's standing balance
// plus `funding` units of its escrow.
func open(hc *host.Context, payer, addr core.Address, job *core.Job, funding uint64) error {
	used, err := Exists(hc.KV, addr)
	if err != nil {
		return err
	}
	if used {
		return errors.Wrapf(core.ErrJobExists, "job %s", addr)
	}
	rent, err := jobRent(hc)
	if err != nil {
		return err
	}
	total, ok := escrow.Add(funding, rent)
	if !ok {
		return errors.Wrap(core.ErrOverflow, "escrow plus rent")
	}
	if err := hc.Ledger().Transfer(payer, addr, total, 0); err != nil {
		return errors.Wrapf(err, "fund job %s", addr)
	}
	return create(hc.KV, addr, job)
}

func addSeconds(now, seconds int64) (int64, bool) {
	at := now + seconds
	if seconds > 0 && at < now {
		return 0, false
	}
	return at, true
}

// Complete records the agent's result. A pending job is promoted to
// InProgress first. Jobs with outstanding delegations cannot complete.
func Complete(hc *host.Context, signer core.Address, p core.UpdateJobPayload) (*core.Job, error) {
	job, err := Load(hc.KV, p.Job)
	if err != nil {
		return nil, err
	}
	if signer != job.Agent {
		return nil, errors.Wrapf(core.ErrUnauthorized, "%s is not the agent of job %s", signer, p.Job)
	}
	if job.Status != core.JobPending && job.Status != core.JobInProgress {
		return nil, errors.Wrapf(core.ErrInvalidJobStatus, "job %s is %s", p.Job, job.Status)
	}
	if job.ActiveChildren > 0 {
		return nil, errors.Wrapf(core.ErrUnresolvedChildren, "job %s has %d active children", p.Job, job.ActiveChildren)
	}
	if p.ResultURI == "" {
		return nil, core.ErrEmptyResultURI
	}
	if len(p.ResultURI) > core.MaxResultURILen {
		return nil, core.ErrResultURITooLong
	}

	job.Status = core.JobCompleted
	now := hc.Now
	job.CompletedAt = &now
	job.ResultURI = p.ResultURI
	if err := save(hc.KV, p.Job, job); err != nil {
		return nil, err
	}

	hc.Emit(communication.JobCompleted{Job: p.Job, Agent: job.Agent, ResultURI: p.ResultURI})
	return job, nil
}

// Release pays a completed job out to its agent on the client's instruction.
func Release(hc *host.Context, signer core.Address, p core.ReleasePayload) error {
	job, err := Load(hc.KV, p.Job)
	if err != nil {
		return err
	}
	if job.Status != core.JobCompleted {
		return errors.Wrapf(core.ErrInvalidJobStatus, "job %s is %s", p.Job, job.Status)
	}
	if signer != job.Client {
		return errors.Wrapf(core.ErrUnauthorized, "%s is not the client of job %s", signer, p.Job)
	}
	return finalize(hc, p, job, false)
}

// AutoRelease pays a completed job out once its deadline has passed. Anyone
// may submit it.
func AutoRelease(hc *host.Context, _ core.Address, p core.ReleasePayload) error {
	job, err := Load(hc.KV, p.Job)
	if err != nil {
		return err
	}
	if job.Status != core.JobCompleted {
		return errors.Wrapf(core.ErrInvalidJobStatus, "job %s is %s", p.Job, job.Status)
	}
	if job.AutoReleaseAt == nil {
		return errors.Wrapf(core.ErrNoAutoRelease, "job %s", p.Job)
	}
	if hc.Now < *job.AutoReleaseAt {
		return errors.Wrapf(core.ErrAutoReleaseNotReady, "job %s releases at %d, now %d", p.Job, *job.AutoReleaseAt, hc.Now)
	}
	return finalize(hc, p, job, true)
}

func finalize(hc *host.Context, p core.ReleasePayload, job *core.Job, auto bool) error {
	if err := reconcileParent(hc, p, job); err != nil {
		return err
	}

	profileAddr, profile, err := registry.GetByOwner(hc.KV, job.Agent)
	if err != nil {
		return err
	}
	completed, ok := escrow.Add(uint64(profile.JobsCompleted), 1)
	if !ok || completed > uint64(^uint32(0)) {
		return errors.Wrap(core.ErrOverflow, "jobs completed")
	}
	profile.JobsCompleted = uint32(completed)
	if err := registry.Save(hc.KV, profileAddr, profile); err != nil {
		return err
	}

	amount, err := payOut(hc, p.Job, job, job.Agent)
	if err != nil {
		return err
	}
	if err := closeJob(hc, p.Job, job, core.JobFinalized, amount); err != nil {
		return err
	}

	hc.Emit(communication.PaymentReleased{Job: p.Job, Agent: job.Agent, Amount: amount, AutoReleased: auto})
	return nil
}

// Cancel refunds a pending job to its client.
func Cancel(hc *host.Context, signer core.Address, p core.JobPayload) error {
	job, err := Load(hc.KV, p.Job)
	if err != nil {
		return err
	}
	if signer != job.Client {
		return errors.Wrapf(core.ErrUnauthorized, "%s is not the client of job %s", signer, p.Job)
	}
	if job.Status != core.JobPending {
		return errors.Wrapf(core.ErrInvalidJobStatus, "job %s is %s", p.Job, job.Status)
	}
	refund, err := payOut(hc, p.Job, job, job.Client)
	if err != nil {
		return err
	}
	if err := closeJob(hc, p.Job, job, core.JobCancelled, refund); err != nil {
		return err
	}
	hc.Emit(communication.JobCancelled{Job: p.Job, Client: job.Client, Refund: refund})
	return nil
}

// RaiseDispute freezes a job that has not yet closed. Either party may raise it.
func RaiseDispute(hc *host.Context, signer core.Address, p core.JobPayload) error {
	job, err := Load(hc.KV, p.Job)
	if err != nil {
		return err
	}
	if signer != job.Client && signer != job.Agent {
		return errors.Wrapf(core.ErrUnauthorized, "%s is not a party to job %s", signer, p.Job)
	}
	switch job.Status {
	case core.JobPending, core.JobInProgress, core.JobCompleted:
	default:
		return errors.Wrapf(core.ErrInvalidJobStatus, "job %s is %s", p.Job, job.Status)
	}
	job.Status = core.JobDisputed
	now := hc.Now
	job.DisputedAt = &now
	if err := save(hc.KV, p.Job, job); err != nil {
		return err
	}
	hc.Emit(communication.DisputeRaised{Job: p.Job, RaisedBy: signer})
	return nil
}

// ResolveDisputeByTimeout refunds the client of a dispute left open for
// longer than core.DisputeTimeout.
func ResolveDisputeByTimeout(hc *host.Context, signer core.Address, p core.JobPayload) error {
	job, err := Load(hc.KV, p.Job)
	if err != nil {
		return err
	}
	if signer != job.Client && signer != job.Agent {
		return errors.Wrapf(core.ErrUnauthorized, "%s is not a party to job %s", signer, p.Job)
	}
	if job.Status != core.JobDisputed || job.DisputedAt == nil {
		return errors.Wrapf(core.ErrInvalidJobStatus, "job %s is %s", p.Job, job.Status)
	}
	if hc.Now-*job.DisputedAt <= core.DisputeTimeout {
		return errors.Wrapf(core.ErrDisputeTimeoutNotReached, "disputed at %d, now %d", *job.DisputedAt, hc.Now)
	}
	refund, err := payOut(hc, p.Job, job, job.Client)
	if err != nil {
		return err
	}
	if err := closeJob(hc, p.Job, job, core.JobCancelled, refund); err != nil {
		return err
	}
	hc.Emit(communication.DisputeResolved{Job: p.Job, Client: job.Client, Refund: refund})
	return nil
}
