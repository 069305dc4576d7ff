package core

import "github.com/cockroachdb/errors"

// JobStatus is the lifecycle state of a job.
type JobStatus uint8

const (
	JobPending JobStatus = iota
	JobInProgress
	JobCompleted
	JobDisputed
	JobCancelled
	JobFinalized
)

var jobStatusNames = [...]string{"Pending", "InProgress", "Completed", "Disputed", "Cancelled", "Finalized"}

func (s JobStatus) String() string {
	if int(s) < len(jobStatusNames) {
		return jobStatusNames[s]
	}
	return "Unknown"
}

// Terminal reports whether the status closes the job record.
func (s JobStatus) Terminal() bool { return s == JobCancelled || s == JobFinalized }

func (s JobStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *JobStatus) UnmarshalText(text []byte) error {
	for i, name := range jobStatusNames {
		if name == string(text) {
			*s = JobStatus(i)
			return nil
		}
	}
	return errors.Mark(errors.Newf("unknown job status %q", text), ErrValidation)
}

// Job is one unit of escrowed work, either a root job or a delegated child.
type Job struct {
	Client         Address   `json:"client" cbor:"client"`
	Agent          Address   `json:"agent" cbor:"agent"`
	Escrow         uint64    `json:"escrow" cbor:"escrow"`
	Status         JobStatus `json:"status" cbor:"status"`
	Description    string    `json:"description" cbor:"description"`
	ResultURI      string    `json:"result_uri" cbor:"result_uri"`
	ParentJob      *Address  `json:"parent_job,omitempty" cbor:"parent_job,omitempty"`
	ActiveChildren uint8     `json:"active_children" cbor:"active_children"`
	AutoReleaseAt  *int64    `json:"auto_release_at,omitempty" cbor:"auto_release_at,omitempty"`
	DisputedAt     *int64    `json:"disputed_at,omitempty" cbor:"disputed_at,omitempty"`
	CreatedAt      int64     `json:"created_at" cbor:"created_at"`
	CompletedAt    *int64    `json:"completed_at,omitempty" cbor:"completed_at,omitempty"`
	TimestampSeed  int64     `json:"timestamp_seed" cbor:"timestamp_seed"`
}

// JobReceipt is what remains addressable after a job record is closed.
type JobReceipt struct {
	Client    Address   `json:"client" cbor:"client"`
	Agent     Address   `json:"agent" cbor:"agent"`
	Status    JobStatus `json:"status" cbor:"status"`
	ParentJob *Address  `json:"parent_job,omitempty" cbor:"parent_job,omitempty"`
	Amount    uint64    `json:"amount" cbor:"amount"`
	ClosedAt  int64     `json:"closed_at" cbor:"closed_at"`
}
