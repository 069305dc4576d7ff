package core

// DisputeTimeout is the number of seconds after a dispute is raised before
// the client may be refunded without the agent's consent.
const DisputeTimeout int64 = 604_800

// MaxActiveChildren caps outstanding delegations per job.
const MaxActiveChildren uint8 = 8

// Field limits, in bytes.
const (
	MaxAgentNameLen        = 32
	MaxAgentDescriptionLen = 128
	MaxJobDescriptionLen   = 256
	MaxResultURILen        = 128
)

// Rating bounds.
const (
	MinScore uint8 = 1
	MaxScore uint8 = 5
)

// Serialized record sizes, including an 8 byte discriminator. They size the
// minimum standing balance of each custody account.
const (
	AgentProfileRecordSize uint64 = 8 + 32 + (4 + MaxAgentNameLen) + (4 + MaxAgentDescriptionLen) + 2 + 8 + 1 + 8 + 4 + 4 + 8 + 1
	JobRecordSize          uint64 = 8 + 32 + 32 + 8 + 1 + (4 + MaxJobDescriptionLen) + (4 + MaxResultURILen) + 33 + 1 + 9 + 9 + 8 + 9 + 8 + 1
	RatingRecordSize       uint64 = 8 + 32 + 32 + 32 + 1 + 8 + 1
)
