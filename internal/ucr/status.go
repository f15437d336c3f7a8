package ucr

// ContextStatus is the lifecycle state of a Configuration. It is owned by the
// Governance section and advanced only through the lifecycle package.
type ContextStatus string

const (
	StatusDraftAI        ContextStatus = "DRAFT_AI"
	StatusAIReady        ContextStatus = "AI_READY"
	StatusAIAnalysisRun  ContextStatus = "AI_ANALYSIS_RUN"
	StatusHumanConfirmed ContextStatus = "HUMAN_CONFIRMED"
	StatusLocked         ContextStatus = "LOCKED"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []ContextStatus {
	return []ContextStatus{
		StatusDraftAI,
		StatusAIReady,
		StatusAIAnalysisRun,
		StatusHumanConfirmed,
		StatusLocked,
	}
}

// Valid reports whether s is a known status.
func (s ContextStatus) Valid() bool {
	for _, known := range AllStatuses() {
		if known == s {
			return true
		}
	}
	return false
}

// ValidationStatus summarizes the last validation run stored on Governance.
type ValidationStatus string

const (
	ValidationComplete    ValidationStatus = "complete"
	ValidationIncomplete  ValidationStatus = "incomplete"
	ValidationBlocked     ValidationStatus = "blocked"
	ValidationNeedsReview ValidationStatus = "needs_review"
)

// ApprovalStatus is the human review state of a single section.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Origin records who authored a piece of content.
type Origin string

const (
	OriginAI    Origin = "ai"
	OriginHuman Origin = "human"
)
