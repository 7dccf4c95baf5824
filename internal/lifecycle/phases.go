// Package lifecycle defines the project lifecycle phase table and the gate that moves a
// project from one phase to the next.
//
// The table is static and linear: a project only ever moves forward one phase at
// a time, and each phase names the minimum role tier needed to enter it.
package lifecycle

import "strings"

// Tier is an ordinal role rank. Higher tiers satisfy every lower requirement.
type Tier int

const (
	TierMember Tier = iota
	TierAdmin
	TierOwner
)

// String returns the role name of the tier
func (t Tier) String() string {
	switch t {
	case TierOwner:
		return "owner"
	case TierAdmin:
		return "admin"
	default:
		return "member"
	}
}

// MarshalText renders the tier by name in JSON payloads
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Phase is one entry of the lifecycle table
type Phase struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	RequiredTier Tier   `json:"required_tier"`
}

// phases is ordered; a project's next phase is the entry after its current one.
var phases = []Phase{
	{Name: "concept", Label: "Concept", RequiredTier: TierMember},
	{Name: "plan", Label: "Plan", RequiredTier: TierMember},
	{Name: "produce", Label: "Produce", RequiredTier: TierAdmin},
	{Name: "operate", Label: "Operate", RequiredTier: TierAdmin},
	{Name: "close", Label: "Close", RequiredTier: TierOwner},
}

// Phases returns a copy of the phase table in order
func Phases() []Phase {
	out := make([]Phase, len(phases))
	copy(out, phases)
	return out
}

// PhaseIndex returns the position of status in the table, or -1 if unknown
func PhaseIndex(status string) int {
	for i, p := range phases {
		if p.Name == status {
			return i
		}
	}
	return -1
}

// GetPhaseInfo looks up a phase by name
func GetPhaseInfo(status string) (Phase, bool) {
	i := PhaseIndex(status)
	if i < 0 {
		return Phase{}, false
	}
	return phases[i], true
}

// GetNextPhase returns the phase after status. There is none for the terminal
// phase or for a status that is not in the table.
func GetNextPhase(status string) (Phase, bool) {
	i := PhaseIndex(status)
	if i < 0 || i+1 >= len(phases) {
		return Phase{}, false
	}
	return phases[i+1], true
}

// IsTerminal reports whether status is the last phase
func IsTerminal(status string) bool {
	return PhaseIndex(status) == len(phases)-1
}

// CanAccessPhase reports whether tier meets the phase requirement
func CanAccessPhase(phase Phase, tier Tier) bool {
	return tier >= phase.RequiredTier
}

// GetUserTier maps a role name to its tier. Role names other than owner and
// admin, including custom roles, rank as member.
func GetUserTier(roleName string) Tier {
	switch strings.ToLower(strings.TrimSpace(roleName)) {
	case "owner":
		return TierOwner
	case "admin":
		return TierAdmin
	default:
		return TierMember
	}
}
