package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

var hostnamePattern = regexp.MustCompile(`^(?i)[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)

// ValidateBrand requires a bare hostname domain.
func ValidateBrand(b ucr.Brand) SectionValidation {
	r := newReport(ucr.SectionBrand)

	domain := strings.TrimSpace(b.Domain)
	switch {
	case domain == "":
		r.require("domain", "domain is required")
	case strings.Contains(domain, "://") || strings.Contains(domain, "/"):
		r.fail(fmt.Sprintf("domain %q must be a bare hostname without scheme or path", domain))
	case !hostnamePattern.MatchString(domain):
		r.fail(fmt.Sprintf("domain %q is not a valid hostname", domain))
	}

	if strings.TrimSpace(b.Name) == "" {
		r.warn("brand name is empty")
	}
	if strings.TrimSpace(b.Industry) == "" {
		r.warn("industry is not set")
	}
	if len(nonEmpty(b.PrimaryGeography)) == 0 {
		r.warn("no primary geography defined")
	}

	return r.result()
}

// ValidateCategoryDefinition requires a primary category and disjoint
// included and excluded lists.
func ValidateCategoryDefinition(c ucr.CategoryDefinition) SectionValidation {
	r := newReport(ucr.SectionCategoryDefinition)

	if strings.TrimSpace(c.PrimaryCategory) == "" {
		r.require("primary_category", "primary_category is required")
	}
	for _, v := range overlap(c.Included, c.Excluded) {
		r.fail(fmt.Sprintf("category %q is both included and excluded", v))
	}
	if len(nonEmpty(c.AlternativeCategories)) == 0 {
		r.warn("no alternative categories defined")
	}

	return r.result()
}

// ValidateCompetitors requires at least one named tier-1 or tier-2 competitor.
func ValidateCompetitors(c ucr.Competitors) SectionValidation {
	r := newReport(ucr.SectionCompetitors)

	core := 0
	approved := 0
	rejected := 0
	seen := make(map[string]bool)
	for _, comp := range c.Competitors {
		named := strings.TrimSpace(comp.Name) != "" || strings.TrimSpace(comp.Domain) != ""
		if named && (comp.Tier == ucr.Tier1 || comp.Tier == ucr.Tier2) {
			core++
		}
		switch comp.Status {
		case ucr.ApprovalApproved:
			approved++
		case ucr.ApprovalRejected:
			rejected++
		}

		domain := normalize(comp.Domain)
		if domain == "" {
			continue
		}
		if seen[domain] {
			r.warn(fmt.Sprintf("competitor domain %q is listed more than once", domain))
		}
		seen[domain] = true
	}

	if core == 0 {
		r.require("competitors", "at least one tier1 or tier2 competitor is required")
	}
	if len(c.Competitors) > 0 && approved == 0 {
		r.warn("no competitor has been approved by a human")
	}
	if len(c.Competitors) > 0 && rejected == len(c.Competitors) {
		r.warn("every competitor is rejected")
	}

	return r.result()
}

// ValidateDemandDefinition requires at least one seed or category term.
func ValidateDemandDefinition(d ucr.DemandDefinition) SectionValidation {
	r := newReport(ucr.SectionDemandDefinition)

	if len(nonEmpty(d.BrandKeywords.SeedTerms)) == 0 && len(nonEmpty(d.NonBrandKeywords.CategoryTerms)) == 0 {
		r.require("brand_keywords.seed_terms", "at least one seed term or category term is required")
	}
	for _, v := range overlap(d.IncludedTerms, d.ExcludedTerms) {
		r.fail(fmt.Sprintf("term %q is both included and excluded", v))
	}
	if d.BrandKeywords.TopN <= 0 {
		r.warn("brand_keywords.top_n is not set")
	}
	if len(nonEmpty(d.NonBrandKeywords.ProblemTerms)) == 0 {
		r.warn("no problem terms defined")
	}

	return r.result()
}

// ValidateStrategicIntent is optional and only warns.
func ValidateStrategicIntent(s ucr.StrategicIntent) SectionValidation {
	r := newReport(ucr.SectionStrategicIntent)

	if strings.TrimSpace(s.PrimaryGoal) == "" {
		r.warn("primary_goal is not set")
	}
	if strings.TrimSpace(s.RiskTolerance) == "" {
		r.warn("risk_tolerance is not set")
	}
	for _, v := range overlap(s.SecondaryGoals, s.Avoid) {
		r.warn(fmt.Sprintf("%q is both a secondary goal and on the avoid list", v))
	}

	return r.result()
}

// ValidateChannelContext is optional and only warns.
func ValidateChannelContext(c ucr.ChannelContext) SectionValidation {
	r := newReport(ucr.SectionChannelContext)

	if len(nonEmpty(c.Channels)) == 0 {
		r.warn("no channels defined")
	}
	if c.SEOInvestmentLevel == "" {
		r.warn("seo_investment_level is not set")
	}

	return r.result()
}

// ValidateNegativeScope fails closed: no active exclusion, or hard exclusion
// off, are errors. Expired entries are reported but left in place and do not
// count toward the minimum.
func ValidateNegativeScope(n ucr.NegativeScope, now time.Time) SectionValidation {
	r := newReport(ucr.SectionNegativeScope)

	switch {
	case n.TotalExclusions() == 0:
		r.require("exclusions", "at least one exclusion (category, keyword, use case or competitor) is required")
	case n.ActiveExclusions(now) == 0:
		r.require("exclusions", "at least one unexpired exclusion is required; every exclusion has expired")
	}
	if !n.EnforcementRules.HardExclusion {
		r.require("enforcement_rules.hard_exclusion", "hard_exclusion must be enabled")
	}

	expired := 0
	unexplained := 0
	for _, kind := range ucr.ExclusionKinds() {
		for _, e := range n.Entries(kind) {
			if e.Expired(now) {
				expired++
			}
			if e.AddedBy == ucr.OriginAI && strings.TrimSpace(e.Reason) == "" {
				unexplained++
			}
		}
	}
	if expired > 0 {
		r.warn(fmt.Sprintf("%d exclusion(s) have expired and are no longer enforced", expired))
	}
	if unexplained > 0 {
		r.warn(fmt.Sprintf("%d AI-suggested exclusion(s) have no reason", unexplained))
	}

	return r.result()
}

// ValidateGovernance is optional and only warns.
func ValidateGovernance(g ucr.Governance, now time.Time) SectionValidation {
	r := newReport(ucr.SectionGovernance)

	switch {
	case g.ContextValidUntil == nil:
		r.warn("context_valid_until is not set")
	case g.Expired(now):
		r.warn(fmt.Sprintf("context expired at %s", g.ContextValidUntil.UTC().Format(time.RFC3339)))
	}
	if g.ContextConfidence.Level == "" {
		r.warn("context_confidence.level is not set")
	}

	return r.result()
}

// nonEmpty drops blank strings.
func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// overlap returns values present in both lists, compared case-insensitively,
// in the order they appear in a.
func overlap(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		if n := normalize(v); n != "" {
			inB[n] = true
		}
	}
	var out []string
	reported := make(map[string]bool)
	for _, v := range a {
		n := normalize(v)
		if n == "" || !inB[n] || reported[n] {
			continue
		}
		reported[n] = true
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
