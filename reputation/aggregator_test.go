package reputation

import (
	"testing"

	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/agent-protocol/communication"
	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/escrow"
	"github.com/NethermindEth/agent-protocol/host"
	"github.com/NethermindEth/agent-protocol/jobs"
	"github.com/NethermindEth/agent-protocol/registry"
	"github.com/NethermindEth/agent-protocol/store"
)

var testRent = escrow.Rent{PerByte: 2, Overhead: 16}

func addr(b byte) core.Address {
	var a core.Address
	a[19] = b
	return a
}

var (
	client   = addr(1)
	agent    = addr(2)
	subAgent = addr(3)
)

type chain struct {
	t      *testing.T
	s      *store.Store
	now    int64
	events []communication.Event
}

func newChain(t *testing.T) *chain {
	t.Helper()
	s, err := store.New(dbm.NewMemDB(), nil)
	require.NoError(t, err)
	ledger := escrow.NewLedger(s.Block())
	for _, a := range []core.Address{client, agent, subAgent} {
		require.NoError(t, ledger.Mint(a, 1_000_000))
	}
	c := &chain{t: t, s: s, now: 1_700_000_000}
	c.must(func(hc *host.Context) error {
		_, _, err := registry.Register(hc, agent, core.RegisterAgentPayload{Name: "auditor", Price: 500})
		return err
	})
	c.must(func(hc *host.Context) error {
		_, _, err := registry.Register(hc, subAgent, core.RegisterAgentPayload{Name: "tester", Price: 100})
		return err
	})
	return c
}

func (c *chain) run(fn func(hc *host.Context) error) error {
	cache := store.NewCache(c.s.Block())
	hc := host.NewContext(cache, 1, c.now, testRent, nil)
	if err := fn(hc); err != nil {
		return err
	}
	require.NoError(c.t, cache.Write())
	c.events = append(c.events, hc.Events.Events()...)
	return nil
}

func (c *chain) must(fn func(hc *host.Context) error) {
	c.t.Helper()
	require.NoError(c.t, c.run(fn))
}

func (c *chain) balance(a core.Address) uint64 {
	bal, err := escrow.NewLedger(c.s.Block()).Balance(a)
	require.NoError(c.t, err)
	return bal
}

func (c *chain) profile(owner core.Address) *core.AgentProfile {
	_, p, err := registry.GetByOwner(c.s.Block(), owner)
	require.NoError(c.t, err)
	return p
}

// finalizedJob runs a job from invocation to release and returns its address.
func (c *chain) finalizedJob(seed int64) core.Address {
	var job core.Address
	c.must(func(hc *host.Context) error {
		var err error
		job, _, err = jobs.Invoke(hc, client, core.InvokeAgentPayload{
			AgentProfile: core.DeriveAgentAddress(agent),
			Description:  "audit",
			Payment:      500,
			Seed:         seed,
		})
		return err
	})
	c.must(func(hc *host.Context) error {
		_, err := jobs.Complete(hc, agent, core.UpdateJobPayload{Job: job, ResultURI: "ipfs://r"})
		return err
	})
	c.must(func(hc *host.Context) error {
		return jobs.Release(hc, client, core.ReleasePayload{Job: job})
	})
	return job
}

func (c *chain) rate(rater, job core.Address, score uint8) (uint64, error) {
	var avg uint64
	err := c.run(func(hc *host.Context) error {
		var err error
		avg, err = Rate(hc, rater, core.RateAgentPayload{Job: job, Score: score})
		return err
	})
	return avg, err
}

func TestEndToEndDelegationAndRating(t *testing.T) {
	c := newChain(t)
	clientStart, agentStart, subStart := c.balance(client), c.balance(agent), c.balance(subAgent)

	var parent core.Address
	c.must(func(hc *host.Context) error {
		var (
			job *core.Job
			err error
		)
		parent, job, err = jobs.Invoke(hc, client, core.InvokeAgentPayload{
			AgentProfile: core.DeriveAgentAddress(agent),
			Description:  "ship the release",
			Payment:      1000,
			Seed:         1,
		})
		if err == nil {
			assert.Equal(t, core.JobPending, job.Status)
			assert.Equal(t, uint64(1000), job.Escrow)
		}
		return err
	})

	var child core.Address
	c.must(func(hc *host.Context) error {
		var err error
		child, _, err = jobs.Delegate(hc, agent, core.DelegateTaskPayload{
			ParentJob:       parent,
			SubAgentProfile: core.DeriveAgentAddress(subAgent),
			Description:     "write the tests",
			Amount:          400,
			Seed:            1,
		})
		return err
	})
	p, err := jobs.Load(c.s.Block(), parent)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), p.Escrow)
	assert.Equal(t, uint8(1), p.ActiveChildren)
	assert.Equal(t, core.JobInProgress, p.Status)
	ch, err := jobs.Load(c.s.Block(), child)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), ch.Escrow)
	assert.Equal(t, core.JobPending, ch.Status)

	c.must(func(hc *host.Context) error {
		_, err := jobs.Complete(hc, subAgent, core.UpdateJobPayload{Job: child, ResultURI: "ipfs://tests"})
		return err
	})
	c.must(func(hc *host.Context) error {
		return jobs.Release(hc, agent, core.ReleasePayload{Job: child, ParentJob: &parent})
	})
	receipt, err := jobs.LoadReceipt(c.s.Block(), child)
	require.NoError(t, err)
	assert.Equal(t, core.JobFinalized, receipt.Status)
	assert.Equal(t, subStart+400, c.balance(subAgent))
	p, err = jobs.Load(c.s.Block(), parent)
	require.NoError(t, err)
	assert.Zero(t, p.ActiveChildren)

	c.must(func(hc *host.Context) error {
		_, err := jobs.Complete(hc, agent, core.UpdateJobPayload{Job: parent, ResultURI: "ipfs://release"})
		return err
	})
	p, err = jobs.Load(c.s.Block(), parent)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, p.Status)

	c.must(func(hc *host.Context) error {
		return jobs.Release(hc, client, core.ReleasePayload{Job: parent})
	})
	receipt, err = jobs.LoadReceipt(c.s.Block(), parent)
	require.NoError(t, err)
	assert.Equal(t, core.JobFinalized, receipt.Status)
	assert.Equal(t, agentStart+600, c.balance(agent))
	assert.Equal(t, clientStart-1000, c.balance(client))
	assert.Equal(t, uint32(1), c.profile(agent).JobsCompleted)
	assert.Equal(t, uint32(1), c.profile(subAgent).JobsCompleted)

	avg, err := c.rate(client, parent, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), avg)
	prof := c.profile(agent)
	assert.Equal(t, uint32(1), prof.RatingCount)
	assert.Equal(t, uint64(5), prof.RatingSum)

	types := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		types = append(types, ev.EventType())
	}
	assert.Equal(t, []string{
		communication.EventAgentRegistered,
		communication.EventAgentRegistered,
		communication.EventJobCreated,
		communication.EventJobDelegated,
		communication.EventJobCompleted,
		communication.EventPaymentReleased,
		communication.EventJobCompleted,
		communication.EventPaymentReleased,
		communication.EventAgentRated,
	}, types)
}

func TestAverageIsTruncated(t *testing.T) {
	c := newChain(t)
	var avg uint64
	for i, score := range []uint8{5, 3, 4} {
		job := c.finalizedJob(int64(i))
		var err error
		avg, err = c.rate(client, job, score)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(400), avg)

	last := c.events[len(c.events)-1].(communication.AgentRated)
	assert.Equal(t, uint64(400), last.NewAverageX100)
	assert.Equal(t, uint8(4), last.Score)

	c.finalizedJob(10)
	c.finalizedJob(11)
	avg, err := c.rate(client, core.DeriveJobAddress(client, core.DeriveAgentAddress(agent), 10), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(425), avg)
	avg, err = c.rate(client, core.DeriveJobAddress(client, core.DeriveAgentAddress(agent), 11), 1)
	require.NoError(t, err)
	// 18*100/5
	assert.Equal(t, uint64(360), avg)
}

func TestRateRecordsRating(t *testing.T) {
	c := newChain(t)
	job := c.finalizedJob(1)
	before := c.balance(client)

	_, err := c.rate(client, job, 4)
	require.NoError(t, err)

	r, err := Get(c.s.Block(), job)
	require.NoError(t, err)
	assert.Equal(t, core.Rating{Agent: agent, Rater: client, Job: job, Score: 4, CreatedAt: c.now}, *r)

	rent, err := testRent.MinimumBalance(core.RatingRecordSize)
	require.NoError(t, err)
	assert.Equal(t, before-rent, c.balance(client))
	assert.Equal(t, rent, c.balance(core.DeriveRatingAddress(job)))
}

func TestDoubleRatingLeavesStateUnchanged(t *testing.T) {
	c := newChain(t)
	job := c.finalizedJob(1)
	_, err := c.rate(client, job, 5)
	require.NoError(t, err)

	profileBefore := *c.profile(agent)
	balanceBefore := c.balance(client)
	eventsBefore := len(c.events)

	_, err = c.rate(client, job, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDuplicateRating))
	assert.True(t, errors.Is(err, core.ErrAlreadyExists))

	assert.Equal(t, profileBefore, *c.profile(agent))
	assert.Equal(t, balanceBefore, c.balance(client))
	assert.Len(t, c.events, eventsBefore)
	r, err := Get(c.s.Block(), job)
	require.NoError(t, err)
	assert.Equal(t, uint8(5), r.Score)
}

func TestRateRejects(t *testing.T) {
	c := newChain(t)
	finalized := c.finalizedJob(1)

	var open core.Address
	c.must(func(hc *host.Context) error {
		var err error
		open, _, err = jobs.Invoke(hc, client, core.InvokeAgentPayload{
			AgentProfile: core.DeriveAgentAddress(agent), Description: "open", Payment: 500, Seed: 2,
		})
		return err
	})
	var cancelled core.Address
	c.must(func(hc *host.Context) error {
		var err error
		cancelled, _, err = jobs.Invoke(hc, client, core.InvokeAgentPayload{
			AgentProfile: core.DeriveAgentAddress(agent), Description: "cancel", Payment: 500, Seed: 3,
		})
		return err
	})
	c.must(func(hc *host.Context) error {
		return jobs.Cancel(hc, client, core.JobPayload{Job: cancelled})
	})

	tests := []struct {
		name  string
		rater core.Address
		job   core.Address
		score uint8
		want  error
		kind  error
	}{
		{"score zero", client, finalized, 0, core.ErrInvalidRating, core.ErrValidation},
		{"score six", client, finalized, 6, core.ErrInvalidRating, core.ErrValidation},
		{"not the client", agent, finalized, 5, core.ErrUnauthorized, core.ErrAuthorization},
		{"job still open", client, open, 5, core.ErrInvalidJobStatus, core.ErrState},
		{"job cancelled", client, cancelled, 5, core.ErrInvalidJobStatus, core.ErrState},
		{"unknown job", client, addr(42), 5, core.ErrJobNotFound, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.rate(tt.rater, tt.job, tt.score)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
	assert.Zero(t, c.profile(agent).RatingCount)
}

func TestGetMissingRating(t *testing.T) {
	c := newChain(t)
	_, err := Get(c.s.Block(), addr(9))
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
