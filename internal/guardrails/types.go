// Package guardrails screens free text against the operator-defined exclusion
// rules of a configuration.
//
// Keyword, category and competitor exclusions match by case-insensitive
// substring. Use-case exclusions and the strategic avoid list match when at
// least two significant tokens of the phrase appear in the text. Exclusions
// block when hard exclusion is on; the avoid list only ever warns.
package guardrails

import (
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// ViolationType identifies which rule list produced a violation.
type ViolationType string

const (
	ViolationExcludedKeyword       ViolationType = "excluded_keyword"
	ViolationExcludedCategory      ViolationType = "excluded_category"
	ViolationExcludedCompetitor    ViolationType = "excluded_competitor"
	ViolationExcludedUseCase       ViolationType = "excluded_use_case"
	ViolationStrategicMisalignment ViolationType = "strategic_misalignment"
)

// Severity levels for violations.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// EnforcementLevel is derived from the enforcement rules, never stored.
type EnforcementLevel string

const (
	EnforcementStrict     EnforcementLevel = "strict"
	EnforcementModerate   EnforcementLevel = "moderate"
	EnforcementPermissive EnforcementLevel = "permissive"
)

// Violation is one match between text and a rule.
type Violation struct {
	Type        ViolationType `json:"type"`
	Severity    Severity      `json:"severity"`
	MatchedTerm string        `json:"matchedTerm"`
	Context     string        `json:"context"`
	Source      string        `json:"source"`
}

// CheckResult is the outcome of screening one text. Passed means no
// block-severity violation; warnings are reported but never fail a check.
type CheckResult struct {
	Passed           bool             `json:"passed"`
	Violations       []Violation      `json:"violations"`
	BlockedCount     int              `json:"blockedCount"`
	WarnCount        int              `json:"warnCount"`
	EnforcementLevel EnforcementLevel `json:"enforcementLevel"`
}

// FilterResult splits a recommendation list into allowed and blocked items.
type FilterResult struct {
	Allowed    []string    `json:"allowed"`
	Blocked    []string    `json:"blocked"`
	Violations []Violation `json:"violations"`
}

// Guardrails is the rule set a text is screened against.
type Guardrails struct {
	NegativeScope   ucr.NegativeScope   `json:"negativeScope"`
	StrategicIntent ucr.StrategicIntent `json:"strategicIntent"`
}

// FromConfiguration extracts the guardrails of cfg.
func FromConfiguration(cfg *ucr.Configuration) Guardrails {
	if cfg == nil {
		return Guardrails{}
	}
	return Guardrails{
		NegativeScope:   cfg.NegativeScope,
		StrategicIntent: cfg.StrategicIntent,
	}
}

// Level derives the enforcement level from the enforcement rules.
func (g Guardrails) Level() EnforcementLevel {
	return LevelOf(g.NegativeScope.EnforcementRules)
}

// LevelOf derives the enforcement level from rules.
func LevelOf(rules ucr.EnforcementRules) EnforcementLevel {
	switch {
	case rules.HardExclusion:
		return EnforcementStrict
	case rules.RequireHumanOverrideForExpansion:
		return EnforcementModerate
	default:
		return EnforcementPermissive
	}
}

// violationTypes maps each exclusion kind to its violation type.
var violationTypes = map[ucr.ExclusionKind]ViolationType{
	ucr.KindCategory:   ViolationExcludedCategory,
	ucr.KindKeyword:    ViolationExcludedKeyword,
	ucr.KindUseCase:    ViolationExcludedUseCase,
	ucr.KindCompetitor: ViolationExcludedCompetitor,
}

// sources names the rule list each kind is read from.
var sources = map[ucr.ExclusionKind]string{
	ucr.KindCategory:   "negative_scope.excluded_categories",
	ucr.KindKeyword:    "negative_scope.excluded_keywords",
	ucr.KindUseCase:    "negative_scope.excluded_use_cases",
	ucr.KindCompetitor: "negative_scope.excluded_competitors",
}

const avoidSource = "strategic_intent.avoid"
