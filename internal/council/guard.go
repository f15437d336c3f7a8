package council

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// BlockMarker prefixes a primary action that was blocked by a guardrail.
const BlockMarker = "[BLOCKED: REQUIRES HUMAN OVERRIDE] "

// blockedConfidenceCap is the highest confidence a blocked synthesis keeps.
const blockedConfidenceCap = 0.5

// GuardrailStatus summarizes the screening of a synthesis for callers.
type GuardrailStatus struct {
	Passed                bool                        `json:"passed"`
	EnforcementLevel      guardrails.EnforcementLevel `json:"enforcementLevel"`
	PrimaryActionBlocked  bool                        `json:"primaryActionBlocked"`
	BlockedActions        []string                    `json:"blockedActions"`
	BlockedCount          int                         `json:"blockedCount"`
	WarnCount             int                         `json:"warnCount"`
	Violations            []guardrails.Violation      `json:"violations"`
	RequiresHumanOverride bool                        `json:"requiresHumanOverride"`
}

// GuardedSynthesis is a synthesis after guardrail screening.
type GuardedSynthesis struct {
	Synthesis Synthesis       `json:"synthesis"`
	Status    GuardrailStatus `json:"guardrailStatus"`
}

// ApplyGuardrailsToSynthesis screens the merged primary action and filters the
// supporting actions. A blocked primary action is kept, prefixed with
// BlockMarker, and the confidence is capped at 0.5. Under strict enforcement a
// blocked primary action requires a human override.
//
// Screening runs on the merged output only; individual perspectives are not a
// substitute, since benign parts can combine into an excluded action.
func ApplyGuardrailsToSynthesis(ctx context.Context, engine *guardrails.Engine, s Synthesis, scope ucr.NegativeScope, intent ucr.StrategicIntent) GuardedSynthesis {
	g := guardrails.Guardrails{NegativeScope: scope, StrategicIntent: intent}

	out := s
	out.UnifiedRecommendation.SupportingActions = slices.Clone(s.UnifiedRecommendation.SupportingActions)
	out.KeyAgreements = slices.Clone(s.KeyAgreements)
	out.KeyConflicts = slices.Clone(s.KeyConflicts)
	out.ContributingCouncils = slices.Clone(s.ContributingCouncils)

	primary := engine.CheckContext(ctx, s.UnifiedRecommendation.PrimaryAction, g)
	supporting := engine.FilterRecommendationsContext(ctx, s.UnifiedRecommendation.SupportingActions, g)

	status := GuardrailStatus{
		Passed:           primary.Passed && len(supporting.Blocked) == 0,
		EnforcementLevel: primary.EnforcementLevel,
		BlockedActions:   supporting.Blocked,
		Violations:       append(slices.Clone(primary.Violations), supporting.Violations...),
	}
	for _, v := range status.Violations {
		switch v.Severity {
		case guardrails.SeverityBlock:
			status.BlockedCount++
		case guardrails.SeverityWarn:
			status.WarnCount++
		}
	}

	out.UnifiedRecommendation.SupportingActions = supporting.Allowed
	if !primary.Passed {
		status.PrimaryActionBlocked = true
		out.UnifiedRecommendation.PrimaryAction = BlockMarker + s.UnifiedRecommendation.PrimaryAction
		out.UnifiedRecommendation.Confidence = min(out.UnifiedRecommendation.Confidence, blockedConfidenceCap)
	}
	status.RequiresHumanOverride = status.PrimaryActionBlocked && status.EnforcementLevel == guardrails.EnforcementStrict

	return GuardedSynthesis{Synthesis: out, Status: status}
}

// Message describes the blocking violations for a human reviewer.
func (g GuardrailStatus) Message() string {
	terms := make([]string, 0, len(g.Violations))
	seen := make(map[string]bool, len(g.Violations))
	for _, v := range g.Violations {
		if v.Severity != guardrails.SeverityBlock || seen[v.MatchedTerm] {
			continue
		}
		seen[v.MatchedTerm] = true
		terms = append(terms, fmt.Sprintf("%q (%s)", v.MatchedTerm, v.Source))
	}
	return "Synthesized primary action violates negative scope " + strings.Join(terms, ", ") + " and requires human override"
}
