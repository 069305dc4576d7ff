package communication

import "github.com/NethermindEth/agent-protocol/core"

// Event types, one per successful state transition.
const (
	EventAgentRegistered = "AgentRegistered"
	EventJobCreated      = "JobCreated"
	EventJobCompleted    = "JobCompleted"
	EventJobCancelled    = "JobCancelled"
	EventJobDelegated    = "JobDelegated"
	EventPaymentReleased = "PaymentReleased"
	EventDisputeRaised   = "DisputeRaised"
	EventDisputeResolved = "DisputeResolved"
	EventAgentRated      = "AgentRated"
)

// Event is an immutable notification payload.
type Event interface {
	EventType() string
}

type AgentRegistered struct {
	Agent core.Address `json:"agent"`
	Owner core.Address `json:"owner"`
	Name  string       `json:"name"`
	Price uint64       `json:"price"`
}

type JobCreated struct {
	Job           core.Address `json:"job"`
	Client        core.Address `json:"client"`
	Agent         core.Address `json:"agent"`
	Escrow        uint64       `json:"escrow"`
	AutoReleaseAt *int64       `json:"auto_release_at,omitempty"`
}

type JobCompleted struct {
	Job       core.Address `json:"job"`
	Agent     core.Address `json:"agent"`
	ResultURI string       `json:"result_uri"`
}

type JobCancelled struct {
	Job    core.Address `json:"job"`
	Client core.Address `json:"client"`
	Refund uint64       `json:"refund"`
}

type JobDelegated struct {
	ParentJob       core.Address `json:"parent_job"`
	ChildJob        core.Address `json:"child_job"`
	DelegatingAgent core.Address `json:"delegating_agent"`
	SubAgent        core.Address `json:"sub_agent"`
	Amount          uint64       `json:"amount"`
}

type PaymentReleased struct {
	Job          core.Address `json:"job"`
	Agent        core.Address `json:"agent"`
	Amount       uint64       `json:"amount"`
	AutoReleased bool         `json:"auto_released"`
}

type DisputeRaised struct {
	Job      core.Address `json:"job"`
	RaisedBy core.Address `json:"raised_by"`
}

type DisputeResolved struct {
	Job    core.Address `json:"job"`
	Client core.Address `json:"client"`
	Refund uint64       `json:"refund"`
}

type AgentRated struct {
	Agent          core.Address `json:"agent"`
	Rater          core.Address `json:"rater"`
	Job            core.Address `json:"job"`
	Score          uint8        `json:"score"`
	NewAverageX100 uint64       `json:"new_average_x100"`
}

func (AgentRegistered) EventType() string { return EventAgentRegistered }
func (JobCreated) EventType() string      { return EventJobCreated }
func (JobCompleted) EventType() string    { return EventJobCompleted }
func (JobCancelled) EventType() string    { return EventJobCancelled }
func (JobDelegated) EventType() string    { return EventJobDelegated }
func (PaymentReleased) EventType() string { return EventPaymentReleased }
func (DisputeRaised) EventType() string   { return EventDisputeRaised }
func (DisputeResolved) EventType() string { return EventDisputeResolved }
func (AgentRated) EventType() string      { return EventAgentRated }
