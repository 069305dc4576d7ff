// Package reputation records client ratings of finalized jobs and keeps each
// agent's running average.
package reputation

import (
	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/communication"
	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/escrow"
	"github.com/NethermindEth/agent-protocol/host"
	"github.com/NethermindEth/agent-protocol/jobs"
	"github.com/NethermindEth/agent-protocol/registry"
	"github.com/NethermindEth/agent-protocol/store"
)

const ratingPrefix = "rating/"

func ratingKey(addr core.Address) []byte {
	return append([]byte(ratingPrefix), addr[:]...)
}

// Rate stores the client's score for a finalized job and folds it into the
// agent's totals. The rater funds the rating account's standing balance.
// It returns the new average scaled by 100.
func Rate(hc *host.Context, rater core.Address, p core.RateAgentPayload) (uint64, error) {
	receipt, err := jobs.LoadReceipt(hc.KV, p.Job)
	if errors.Is(err, core.ErrJobNotFound) {
		if _, lerr := jobs.Load(hc.KV, p.Job); lerr == nil {
			return 0, errors.Wrapf(core.ErrInvalidJobStatus, "job %s is still open", p.Job)
		}
	}
	if err != nil {
		return 0, err
	}
	if receipt.Status != core.JobFinalized {
		return 0, errors.Wrapf(core.ErrInvalidJobStatus, "job %s is %s", p.Job, receipt.Status)
	}
	if rater != receipt.Client {
		return 0, errors.Wrapf(core.ErrUnauthorized, "%s is not the client of job %s", rater, p.Job)
	}
	if p.Score < core.MinScore || p.Score > core.MaxScore {
		return 0, core.ErrInvalidRating
	}

	addr := core.DeriveRatingAddress(p.Job)
	existing, err := hc.KV.Get(ratingKey(addr))
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, errors.Wrapf(core.ErrDuplicateRating, "job %s", p.Job)
	}

	profileAddr, profile, err := registry.GetByOwner(hc.KV, receipt.Agent)
	if err != nil {
		return 0, err
	}
	sum, ok := escrow.Add(profile.RatingSum, uint64(p.Score))
	if !ok {
		return 0, errors.Wrap(core.ErrOverflow, "rating sum")
	}
	count, ok := escrow.Add(uint64(profile.RatingCount), 1)
	if !ok || count > uint64(^uint32(0)) {
		return 0, errors.Wrap(core.ErrOverflow, "rating count")
	}
	scaled, ok := escrow.Mul(sum, 100)
	if !ok {
		return 0, errors.Wrap(core.ErrOverflow, "average")
	}
	average, _ := escrow.Div(scaled, count)
	profile.RatingSum = sum
	profile.RatingCount = uint32(count)

	rent, err := hc.MinimumBalance(core.RatingRecordSize)
	if err != nil {
		return 0, err
	}
	if err := hc.Ledger().Transfer(rater, addr, rent, 0); err != nil {
		return 0, errors.Wrap(err, "fund rating")
	}
	if err := save(hc.KV, addr, &core.Rating{
		Agent:     receipt.Agent,
		Rater:     rater,
		Job:       p.Job,
		Score:     p.Score,
		CreatedAt: hc.Now,
	}); err != nil {
		return 0, err
	}
	if err := registry.Save(hc.KV, profileAddr, profile); err != nil {
		return 0, err
	}

	hc.Emit(communication.AgentRated{
		Agent:          receipt.Agent,
		Rater:          rater,
		Job:            p.Job,
		Score:          p.Score,
		NewAverageX100: average,
	})
	return average, nil
}

func save(kv store.KV, addr core.Address, r *core.Rating) error {
	bz, err := store.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "encode rating %s", addr)
	}
	return kv.Set(ratingKey(addr), bz)
}

// Get loads the rating left for a job.
func Get(kv store.KV, job core.Address) (*core.Rating, error) {
	addr := core.DeriveRatingAddress(job)
	bz, err := kv.Get(ratingKey(addr))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrapf(core.ErrNotFound, "rating for job %s", job)
	}
	var r core.Rating
	if err := store.Unmarshal(bz, &r); err != nil {
		return nil, errors.Wrapf(err, "decode rating %s", addr)
	}
	return &r, nil
}
