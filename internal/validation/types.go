package validation

import (
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// Score weights. An error weighs three warnings.
const (
	errorPenalty   = 15
	warningPenalty = 5
)

// SectionValidation is the result of validating one section. It is produced
// fresh on every call and never mutated afterwards.
type SectionValidation struct {
	Section               ucr.Section `json:"section"`
	Valid                 bool        `json:"valid"`
	Errors                []string    `json:"errors"`
	Warnings              []string    `json:"warnings"`
	Score                 int         `json:"score"`
	RequiredFieldsMissing []string    `json:"requiredFieldsMissing"`
}

// FullValidationResult aggregates every section of a Configuration.
type FullValidationResult struct {
	Sections         []SectionValidation `json:"sections"`
	IsValid          bool                `json:"isValid"`
	OverallScore     int                 `json:"overallScore"`
	BlockedReasons   []string            `json:"blockedReasons"`
	SectionsComplete int                 `json:"sectionsComplete"`
	NeedsReview      []ucr.Section       `json:"needsReview"`
	IsCMOSafe        bool                `json:"isCMOSafe"`
	ValidatedAt      time.Time           `json:"validatedAt"`
}

// Section returns the validation for s.
func (r *FullValidationResult) Section(s ucr.Section) (SectionValidation, bool) {
	if r == nil {
		return SectionValidation{}, false
	}
	for _, sv := range r.Sections {
		if sv.Section == s {
			return sv, true
		}
	}
	return SectionValidation{}, false
}

// Score computes a section score from its error and warning counts.
func Score(errors, warnings int) int {
	score := 100 - errors*errorPenalty - warnings*warningPenalty
	if score < 0 {
		return 0
	}
	return score
}

// report accumulates findings for one section.
type report struct {
	section  ucr.Section
	errors   []string
	warnings []string
	missing  []string
}

func newReport(s ucr.Section) *report {
	return &report{
		section:  s,
		errors:   []string{},
		warnings: []string{},
		missing:  []string{},
	}
}

func (r *report) fail(msg string) {
	r.errors = append(r.errors, msg)
}

func (r *report) warn(msg string) {
	r.warnings = append(r.warnings, msg)
}

// require records a missing required field and its error.
func (r *report) require(field, msg string) {
	r.missing = append(r.missing, field)
	r.fail(msg)
}

func (r *report) result() SectionValidation {
	return SectionValidation{
		Section:               r.section,
		Valid:                 len(r.errors) == 0,
		Errors:                r.errors,
		Warnings:              r.warnings,
		Score:                 Score(len(r.errors), len(r.warnings)),
		RequiredFieldsMissing: r.missing,
	}
}
