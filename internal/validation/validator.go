package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// ValidateSection runs the validator for section s of cfg.
func ValidateSection(cfg *ucr.Configuration, s ucr.Section, now time.Time) SectionValidation {
	switch s {
	case ucr.SectionBrand:
		return ValidateBrand(cfg.Brand)
	case ucr.SectionCategoryDefinition:
		return ValidateCategoryDefinition(cfg.CategoryDefinition)
	case ucr.SectionCompetitors:
		return ValidateCompetitors(cfg.Competitors)
	case ucr.SectionDemandDefinition:
		return ValidateDemandDefinition(cfg.DemandDefinition)
	case ucr.SectionStrategicIntent:
		return ValidateStrategicIntent(cfg.StrategicIntent)
	case ucr.SectionChannelContext:
		return ValidateChannelContext(cfg.ChannelContext)
	case ucr.SectionNegativeScope:
		return ValidateNegativeScope(cfg.NegativeScope, now)
	case ucr.SectionGovernance:
		return ValidateGovernance(cfg.Governance, now)
	default:
		r := newReport(s)
		r.fail(fmt.Sprintf("unknown section %q", s))
		return r.result()
	}
}

// ValidateConfiguration validates every section and aggregates the results.
//
// IsValid is the conjunction of the required sections' validity. The overall
// score is the rounded mean of all eight section scores. IsCMOSafe further
// requires hard exclusion and a human approval on every required section.
func ValidateConfiguration(cfg *ucr.Configuration, now time.Time) FullValidationResult {
	result := FullValidationResult{
		Sections:       []SectionValidation{},
		BlockedReasons: []string{},
		NeedsReview:    []ucr.Section{},
		ValidatedAt:    now,
	}
	if cfg == nil {
		result.BlockedReasons = append(result.BlockedReasons, "no configuration provided")
		return result
	}

	valid := true
	total := 0
	for _, s := range ucr.AllSections() {
		sv := ValidateSection(cfg, s, now)
		result.Sections = append(result.Sections, sv)
		total += sv.Score

		if sv.Valid {
			result.SectionsComplete++
		}
		if s.IsRequired() && !sv.Valid {
			valid = false
			for _, e := range sv.Errors {
				result.BlockedReasons = append(result.BlockedReasons, fmt.Sprintf("%s: %s", s.Title(), e))
			}
		}
		if !cfg.Governance.Approved(s) {
			result.NeedsReview = append(result.NeedsReview, s)
		}
	}

	result.IsValid = valid
	result.OverallScore = int(math.Round(float64(total) / float64(len(result.Sections))))
	result.IsCMOSafe = valid && cfg.NegativeScope.EnforcementRules.HardExclusion && requiredApproved(cfg.Governance)
	return result
}

func requiredApproved(g ucr.Governance) bool {
	for _, s := range ucr.RequiredSections() {
		if !g.Approved(s) {
			return false
		}
	}
	return true
}
