package ucr

import (
	"strings"
	"time"
)

// MatchType selects the matcher strategy applied to an exclusion entry.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchSemantic MatchType = "semantic"
)

// ExclusionKind groups exclusion entries inside NegativeScope.
type ExclusionKind string

const (
	KindCategory   ExclusionKind = "category"
	KindKeyword    ExclusionKind = "keyword"
	KindUseCase    ExclusionKind = "use_case"
	KindCompetitor ExclusionKind = "competitor"
)

// ExclusionEntry is a single operator-defined guardrail. An entry without a TTL
// is permanent; an expired entry stays in place for audit but is not applied.
type ExclusionEntry struct {
	Value     string     `json:"value" yaml:"value" validate:"required"`
	MatchType MatchType  `json:"match_type" yaml:"match_type" validate:"omitempty,oneof=exact semantic"`
	TTL       *time.Time `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	AddedBy   Origin     `json:"added_by" yaml:"added_by" validate:"omitempty,oneof=ai human"`
	Reason    string     `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Expired reports whether the entry's TTL lies before now.
func (e ExclusionEntry) Expired(now time.Time) bool {
	return e.TTL != nil && e.TTL.Before(now)
}

// Active reports whether the entry should be applied at now.
func (e ExclusionEntry) Active(now time.Time) bool {
	return strings.TrimSpace(e.Value) != "" && !e.Expired(now)
}

// EnforcementRules control how NegativeScope violations are treated.
type EnforcementRules struct {
	HardExclusion                    bool `json:"hard_exclusion" yaml:"hard_exclusion"`
	AllowModelSuggestion             bool `json:"allow_model_suggestion" yaml:"allow_model_suggestion"`
	RequireHumanOverrideForExpansion bool `json:"require_human_override_for_expansion" yaml:"require_human_override_for_expansion"`
}

// AuditEntry records a change to the exclusion set.
type AuditEntry struct {
	Action    string        `json:"action" yaml:"action"`
	Kind      ExclusionKind `json:"kind" yaml:"kind" validate:"omitempty,oneof=category keyword use_case competitor"`
	Value     string        `json:"value" yaml:"value"`
	Actor     string        `json:"actor,omitempty" yaml:"actor,omitempty"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
}

// NegativeScope holds the exclusion lists grouped by kind.
type NegativeScope struct {
	ExcludedCategories  []ExclusionEntry `json:"excluded_categories" yaml:"excluded_categories" validate:"dive"`
	ExcludedKeywords    []ExclusionEntry `json:"excluded_keywords" yaml:"excluded_keywords" validate:"dive"`
	ExcludedUseCases    []ExclusionEntry `json:"excluded_use_cases" yaml:"excluded_use_cases" validate:"dive"`
	ExcludedCompetitors []ExclusionEntry `json:"excluded_competitors" yaml:"excluded_competitors" validate:"dive"`
	EnforcementRules    EnforcementRules `json:"enforcement_rules" yaml:"enforcement_rules"`
	AuditLog            []AuditEntry     `json:"audit_log,omitempty" yaml:"audit_log,omitempty" validate:"dive"`
}

// Entries returns the exclusion list for kind.
func (n NegativeScope) Entries(kind ExclusionKind) []ExclusionEntry {
	switch kind {
	case KindCategory:
		return n.ExcludedCategories
	case KindKeyword:
		return n.ExcludedKeywords
	case KindUseCase:
		return n.ExcludedUseCases
	case KindCompetitor:
		return n.ExcludedCompetitors
	default:
		return nil
	}
}

// ExclusionKinds returns the kinds in the order they are screened.
func ExclusionKinds() []ExclusionKind {
	return []ExclusionKind{KindCategory, KindKeyword, KindUseCase, KindCompetitor}
}

// ActiveExclusions counts entries of every kind still in force at now.
func (n NegativeScope) ActiveExclusions(now time.Time) int {
	count := 0
	for _, kind := range ExclusionKinds() {
		for _, e := range n.Entries(kind) {
			if e.Active(now) {
				count++
			}
		}
	}
	return count
}

// TotalExclusions counts entries of every kind, expired ones included.
func (n NegativeScope) TotalExclusions() int {
	return len(n.ExcludedCategories) + len(n.ExcludedKeywords) +
		len(n.ExcludedUseCases) + len(n.ExcludedCompetitors)
}
