// Package lifecycle defines the context status machine: which transitions are
// allowed and which validation gates guard them.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
	"github.com/pisanocami/usercontextrecord-sub002/internal/validation"
)

// ErrTransitionBlocked is wrapped by Apply when a transition is refused.
var ErrTransitionBlocked = errors.New("transition blocked")

// transitions is the fixed adjacency table. LOCKED has no outgoing edges.
var transitions = map[ucr.ContextStatus][]ucr.ContextStatus{
	ucr.StatusDraftAI:        {ucr.StatusAIReady},
	ucr.StatusAIReady:        {ucr.StatusAIAnalysisRun, ucr.StatusDraftAI},
	ucr.StatusAIAnalysisRun:  {ucr.StatusHumanConfirmed, ucr.StatusAIReady},
	ucr.StatusHumanConfirmed: {ucr.StatusLocked, ucr.StatusAIAnalysisRun},
	ucr.StatusLocked:         {},
}

// Next returns the statuses reachable from from in one step.
func Next(from ucr.ContextStatus) []ucr.ContextStatus {
	out := make([]ucr.ContextStatus, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// CanTransition reports whether the adjacency table allows from -> to.
func CanTransition(from, to ucr.ContextStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsRollback reports whether from -> to moves the status backwards.
func IsRollback(from, to ucr.ContextStatus) bool {
	return CanTransition(from, to) && rank(to) < rank(from)
}

// BlockedReason returns why from -> to cannot be applied, or "" when it can.
//
// DRAFT_AI -> AI_READY requires a valid configuration.
// AI_ANALYSIS_RUN -> HUMAN_CONFIRMED requires an explicit human approval on
// every section.
func BlockedReason(from, to ucr.ContextStatus, result *validation.FullValidationResult, approvals map[ucr.Section]ucr.SectionApproval) string {
	if !from.Valid() {
		return fmt.Sprintf("unknown status %q", from)
	}
	if !to.Valid() {
		return fmt.Sprintf("unknown status %q", to)
	}
	if from == ucr.StatusLocked {
		return "context is locked; no further transitions are allowed"
	}
	if !CanTransition(from, to) {
		return fmt.Sprintf("cannot transition from %s to %s", from, to)
	}

	switch {
	case from == ucr.StatusDraftAI && to == ucr.StatusAIReady:
		if result == nil || !result.IsValid {
			return "configuration must pass validation before it is AI ready"
		}
	case from == ucr.StatusAIAnalysisRun && to == ucr.StatusHumanConfirmed:
		var pending []ucr.Section
		for _, s := range ucr.AllSections() {
			if a, ok := approvals[s]; !ok || !a.IsApproved() {
				pending = append(pending, s)
			}
		}
		if len(pending) > 0 {
			return fmt.Sprintf("every section needs explicit human approval; pending: %v", pending)
		}
	}
	return ""
}

// Apply advances the governance of cfg to status to and returns the updated
// copy. The validation-derived fields and the context hash are refreshed and
// the version is bumped. cfg is never modified.
func Apply(cfg *ucr.Configuration, to ucr.ContextStatus, result *validation.FullValidationResult, now time.Time) (ucr.Governance, error) {
	if cfg == nil {
		return ucr.Governance{}, fmt.Errorf("%w: no configuration", ErrTransitionBlocked)
	}
	gov := cfg.Governance
	from := gov.Status()
	if reason := BlockedReason(from, to, result, gov.SectionApprovals); reason != "" {
		return gov, fmt.Errorf("%w: %s", ErrTransitionBlocked, reason)
	}

	next := gov.Clone()
	next.ContextStatus = to
	next.ContextVersion++
	reviewed := now
	next.LastReviewed = &reviewed
	next.ContextHash = snapshot.Hash(cfg)
	if result != nil {
		Refresh(&next, result)
	}
	return next, nil
}

// Refresh copies the computed validation fields onto gov.
func Refresh(gov *ucr.Governance, result *validation.FullValidationResult) {
	gov.QualityScore = result.OverallScore
	gov.CMOSafe = result.IsCMOSafe
	gov.ValidationStatus = StatusOf(result)
}

// StatusOf summarizes a validation result for Governance.
func StatusOf(result *validation.FullValidationResult) ucr.ValidationStatus {
	switch {
	case result == nil || len(result.Sections) == 0:
		return ucr.ValidationIncomplete
	case !result.IsValid:
		return ucr.ValidationBlocked
	case len(result.NeedsReview) > 0:
		return ucr.ValidationNeedsReview
	case result.SectionsComplete < len(result.Sections):
		return ucr.ValidationIncomplete
	default:
		return ucr.ValidationComplete
	}
}

func rank(s ucr.ContextStatus) int {
	for i, known := range ucr.AllStatuses() {
		if known == s {
			return i
		}
	}
	return -1
}
