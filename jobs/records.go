package jobs

import (
	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/host"
	"github.com/NethermindEth/agent-protocol/store"
)

// Live job records sit in an arena; a closed job leaves only its receipt.
var arena = store.NewArena("job")

const receiptPrefix = "receipt/"

func receiptKey(job core.Address) []byte {
	return append([]byte(receiptPrefix), job[:]...)
}

// Load returns the live job at addr.
func Load(kv store.KV, addr core.Address) (*core.Job, error) {
	bz, err := arena.Get(kv, addr[:])
	if errors.Is(err, store.ErrNoSlot) {
		return nil, errors.Wrapf(core.ErrJobNotFound, "job %s", addr)
	}
	if err != nil {
		return nil, err
	}
	var job core.Job
	if err := store.Unmarshal(bz, &job); err != nil {
		return nil, errors.Wrapf(err, "decode job %s", addr)
	}
	return &job, nil
}

// LoadReceipt returns the receipt of a closed job.
func LoadReceipt(kv store.KV, addr core.Address) (*core.JobReceipt, error) {
	bz, err := kv.Get(receiptKey(addr))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrapf(core.ErrJobNotFound, "receipt %s", addr)
	}
	var r core.JobReceipt
	if err := store.Unmarshal(bz, &r); err != nil {
		return nil, errors.Wrapf(err, "decode receipt %s", addr)
	}
	return &r, nil
}

// Exists reports whether addr was ever used by a job, live or closed.
func Exists(kv store.KV, addr core.Address) (bool, error) {
	if _, err := arena.Slot(kv, addr[:]); err == nil {
		return true, nil
	} else if !errors.Is(err, store.ErrNoSlot) {
		return false, err
	}
	bz, err := kv.Get(receiptKey(addr))
	return bz != nil, err
}

// Live is the number of open job records.
func Live(kv store.KV) (uint64, error) { return arena.Live(kv) }

func create(kv store.KV, addr core.Address, job *core.Job) error {
	bz, err := store.Marshal(job)
	if err != nil {
		return errors.Wrapf(err, "encode job %s", addr)
	}
	if _, err := arena.Alloc(kv, addr[:], bz); err != nil {
		if errors.Is(err, store.ErrSlotTaken) {
			return errors.Wrapf(core.ErrJobExists, "job %s", addr)
		}
		return err
	}
	return nil
}

func save(kv store.KV, addr core.Address, job *core.Job) error {
	bz, err := store.Marshal(job)
	if err != nil {
		return errors.Wrapf(err, "encode job %s", addr)
	}
	return arena.Put(kv, addr[:], bz)
}

func jobRent(hc *host.Context) (uint64, error) {
	return hc.MinimumBalance(core.JobRecordSize)
}

// checkCustody verifies the job account holds exactly its escrow plus its
// standing balance.
func checkCustody(hc *host.Context, addr core.Address, job *core.Job) error {
	rent, err := jobRent(hc)
	if err != nil {
		return err
	}
	bal, err := hc.Ledger().Balance(addr)
	if err != nil {
		return err
	}
	if bal < rent || bal-rent != job.Escrow {
		return errors.Wrapf(core.ErrCustodyMismatch, "job %s holds %d, escrow %d, rent %d", addr, bal, job.Escrow, rent)
	}
	return nil
}

// payOut moves the whole escrow to `to`, leaving only the standing balance.
func payOut(hc *host.Context, addr core.Address, job *core.Job, to core.Address) (uint64, error) {
	if err := checkCustody(hc, addr, job); err != nil {
		return 0, err
	}
	rent, err := jobRent(hc)
	if err != nil {
		return 0, err
	}
	amount := job.Escrow
	if err := hc.Ledger().Transfer(addr, to, amount, rent); err != nil {
		return 0, err
	}
	job.Escrow = 0
	return amount, nil
}

// closeJob ends a job in a terminal status. The standing balance goes back to
// the client, who paid it, the arena slot is freed and a receipt replaces the
// record.
func closeJob(hc *host.Context, addr core.Address, job *core.Job, status core.JobStatus, amount uint64) error {
	if job.Escrow != 0 {
		return errors.Wrapf(core.ErrCustodyMismatch, "closing job %s with escrow %d", addr, job.Escrow)
	}
	job.Status = status
	if _, err := hc.Ledger().Sweep(addr, job.Client); err != nil {
		return errors.Wrapf(err, "return standing balance of %s", addr)
	}
	if _, err := arena.Free(hc.KV, addr[:]); err != nil {
		return err
	}
	bz, err := store.Marshal(core.JobReceipt{
		Client:    job.Client,
		Agent:     job.Agent,
		Status:    status,
		ParentJob: job.ParentJob,
		Amount:    amount,
		ClosedAt:  hc.Now,
	})
	if err != nil {
		return errors.Wrapf(err, "encode receipt %s", addr)
	}
	hc.Logger.Debug("job closed", "job", addr, "status", status, "amount", amount)
	return hc.KV.Set(receiptKey(addr), bz)
}
