package core

import (
	"strconv"
	"strings"
)

// Capability is a bit set of offered service categories.
type Capability uint16

const (
	CapCodeReview Capability = 1 << iota
	CapSecurityAudit
	CapDocumentation
	CapTesting
	CapDeployment
	CapGeneral
)

var capabilityNames = []struct {
	flag Capability
	name string
}{
	{CapCodeReview, "code-review"},
	{CapSecurityAudit, "security-audit"},
	{CapDocumentation, "documentation"},
	{CapTesting, "testing"},
	{CapDeployment, "deployment"},
	{CapGeneral, "general"},
}

// Has reports whether every flag in other is set.
func (c Capability) Has(other Capability) bool { return c&other == other }

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	rest := c
	for _, cn := range capabilityNames {
		if c.Has(cn.flag) {
			names = append(names, cn.name)
			rest &^= cn.flag
		}
	}
	if rest != 0 {
		names = append(names, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(names, "|")
}

// AgentProfile represents a registered service provider.
type AgentProfile struct {
	Owner         Address    `json:"owner" cbor:"owner"`
	Name          string     `json:"name" cbor:"name"`
	Description   string     `json:"description" cbor:"description"`
	Capabilities  Capability `json:"capabilities" cbor:"capabilities"`
	Price         uint64     `json:"price" cbor:"price"`
	IsActive      bool       `json:"is_active" cbor:"is_active"`
	RatingSum     uint64     `json:"rating_sum" cbor:"rating_sum"`
	RatingCount   uint32     `json:"rating_count" cbor:"rating_count"`
	JobsCompleted uint32     `json:"jobs_completed" cbor:"jobs_completed"`
	CreatedAt     int64      `json:"created_at" cbor:"created_at"`
}

// AverageX100 returns the published average rating scaled by 100, and false
// when the agent has not been rated yet.
func (p *AgentProfile) AverageX100() (uint64, bool) {
	if p.RatingCount == 0 {
		return 0, false
	}
	return p.RatingSum * 100 / uint64(p.RatingCount), true
}
