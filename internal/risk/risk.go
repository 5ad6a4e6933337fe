// Package risk classifies tool calls into risk tiers and gates them against
// a configured maximum.
package risk

import "fmt"

// ErrRiskDenied is returned when a tool call's tier exceeds the configured
// maximum; the Agent Core fails the task as RiskDenied (spec.md §4.5.3).
type ErrRiskDenied struct {
	ToolName string
	Tier     int
	MaxTier  int
}

func (e *ErrRiskDenied) Error() string {
	return fmt.Sprintf("tool %q is risk tier %d, exceeds max allowed tier %d", e.ToolName, e.Tier, e.MaxTier)
}

// Assessor classifies tool calls by name into a configured tier (0 = safe
// read, 1 = mutating, 2 = destructive/egress by convention) and enforces a
// maximum allowed tier. Tiers come from configuration rather than a
// heuristic — see SPEC_FULL.md's Open Question resolution.
type Assessor struct {
	tiers       map[string]int
	defaultTier int
	maxTier     int
}

func New(tiers map[string]int, defaultTier, maxTier int) *Assessor {
	return &Assessor{tiers: tiers, defaultTier: defaultTier, maxTier: maxTier}
}

// Tier returns the configured risk tier for a tool name.
func (a *Assessor) Tier(toolName string) int {
	if tier, ok := a.tiers[toolName]; ok {
		return tier
	}
	return a.defaultTier
}

// Check returns ErrRiskDenied if toolName's tier exceeds the configured
// maximum, nil otherwise.
func (a *Assessor) Check(toolName string) (int, error) {
	tier := a.Tier(toolName)
	if tier > a.maxTier {
		return tier, &ErrRiskDenied{ToolName: toolName, Tier: tier, MaxTier: a.maxTier}
	}
	return tier, nil
}
