package ucr

import (
	"slices"
	"time"
)

// Configuration is the unit of work gated by the engine. The CRUD layer owns
// and mutates it; the engine reads it and writes back Governance only.
type Configuration struct {
	ID       string `json:"id" yaml:"id"`
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	UserID   string `json:"user_id" yaml:"user_id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`

	Brand              Brand              `json:"brand" yaml:"brand"`
	CategoryDefinition CategoryDefinition `json:"category_definition" yaml:"category_definition"`
	Competitors        Competitors        `json:"competitors" yaml:"competitors"`
	DemandDefinition   DemandDefinition   `json:"demand_definition" yaml:"demand_definition"`
	StrategicIntent    StrategicIntent    `json:"strategic_intent" yaml:"strategic_intent"`
	ChannelContext     ChannelContext     `json:"channel_context" yaml:"channel_context"`
	NegativeScope      NegativeScope      `json:"negative_scope" yaml:"negative_scope"`
	Governance         Governance         `json:"governance" yaml:"governance"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Brand describes the brand the configuration belongs to.
type Brand struct {
	Name             string   `json:"name" yaml:"name"`
	Domain           string   `json:"domain" yaml:"domain"`
	Industry         string   `json:"industry" yaml:"industry"`
	BusinessModel    string   `json:"business_model" yaml:"business_model" validate:"omitempty,oneof=B2B B2C DTC Marketplace Hybrid"`
	PrimaryGeography []string `json:"primary_geography" yaml:"primary_geography"`
	RevenueBand      string   `json:"revenue_band,omitempty" yaml:"revenue_band,omitempty"`
	TargetMarket     string   `json:"target_market,omitempty" yaml:"target_market,omitempty"`
}

// CategoryDefinition scopes the market category the brand competes in.
type CategoryDefinition struct {
	PrimaryCategory       string   `json:"primary_category" yaml:"primary_category"`
	AlternativeCategories []string `json:"alternative_categories" yaml:"alternative_categories"`
	Included              []string `json:"included" yaml:"included"`
	Excluded              []string `json:"excluded" yaml:"excluded"`
}

// CompetitorTier ranks how directly a competitor overlaps the brand.
type CompetitorTier string

const (
	Tier1 CompetitorTier = "tier1"
	Tier2 CompetitorTier = "tier2"
	Tier3 CompetitorTier = "tier3"
)

// Competitor is a single tracked competitor.
type Competitor struct {
	Name     string         `json:"name" yaml:"name"`
	Domain   string         `json:"domain" yaml:"domain"`
	Tier     CompetitorTier `json:"tier" yaml:"tier" validate:"required,oneof=tier1 tier2 tier3"`
	Status   ApprovalStatus `json:"status" yaml:"status" validate:"omitempty,oneof=pending approved rejected"`
	AddedBy  Origin         `json:"added_by" yaml:"added_by" validate:"omitempty,oneof=ai human"`
	Evidence string         `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// Competitors lists the competitive set.
type Competitors struct {
	Competitors []Competitor `json:"competitors" yaml:"competitors" validate:"dive"`
}

// ByTier returns competitors of tier t in declaration order.
func (c Competitors) ByTier(t CompetitorTier) []Competitor {
	var out []Competitor
	for _, comp := range c.Competitors {
		if comp.Tier == t {
			out = append(out, comp)
		}
	}
	return out
}

// BrandKeywords are the seed terms that identify the brand itself.
type BrandKeywords struct {
	SeedTerms []string `json:"seed_terms" yaml:"seed_terms"`
	TopN      int      `json:"top_n" yaml:"top_n" validate:"gte=0"`
}

// NonBrandKeywords are category and problem terms the brand wants demand for.
type NonBrandKeywords struct {
	CategoryTerms []string `json:"category_terms" yaml:"category_terms"`
	ProblemTerms  []string `json:"problem_terms" yaml:"problem_terms"`
}

// DemandDefinition describes the search demand the brand targets.
type DemandDefinition struct {
	BrandKeywords    BrandKeywords    `json:"brand_keywords" yaml:"brand_keywords"`
	NonBrandKeywords NonBrandKeywords `json:"non_brand_keywords" yaml:"non_brand_keywords"`
	IncludedTerms    []string         `json:"included_terms" yaml:"included_terms"`
	ExcludedTerms    []string         `json:"excluded_terms" yaml:"excluded_terms"`
}

// StrategicIntent captures goals and the advisory avoid list.
type StrategicIntent struct {
	GrowthPriority string   `json:"growth_priority" yaml:"growth_priority"`
	RiskTolerance  string   `json:"risk_tolerance" yaml:"risk_tolerance" validate:"omitempty,oneof=low medium high"`
	PrimaryGoal    string   `json:"primary_goal" yaml:"primary_goal"`
	SecondaryGoals []string `json:"secondary_goals" yaml:"secondary_goals"`
	GoalType       string   `json:"goal_type,omitempty" yaml:"goal_type,omitempty"`
	TimeHorizon    string   `json:"time_horizon,omitempty" yaml:"time_horizon,omitempty"`
	Avoid          []string `json:"avoid" yaml:"avoid"`
}

// ChannelContext describes the marketing channels in play.
type ChannelContext struct {
	PaidMediaActive       bool     `json:"paid_media_active" yaml:"paid_media_active"`
	SEOInvestmentLevel    string   `json:"seo_investment_level" yaml:"seo_investment_level" validate:"omitempty,oneof=low medium high"`
	MarketplaceDependence string   `json:"marketplace_dependence" yaml:"marketplace_dependence" validate:"omitempty,oneof=low medium high"`
	Channels              []string `json:"channels" yaml:"channels"`
}

// SectionApproval is the explicit human review of one section. It is set only
// by a human action; AI-generated or default content is never approved.
type SectionApproval struct {
	Status     ApprovalStatus `json:"status" yaml:"status" validate:"omitempty,oneof=pending approved rejected"`
	ApprovedBy string         `json:"approved_by,omitempty" yaml:"approved_by,omitempty"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty" yaml:"approved_at,omitempty"`
}

// IsApproved reports whether a named human approved the section.
func (a SectionApproval) IsApproved() bool {
	return a.Status == ApprovalApproved && a.ApprovedBy != ""
}

// ContextConfidence is the operator's stated confidence in the record.
type ContextConfidence struct {
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=low medium high"`
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Governance owns the lifecycle status and the fields computed by the engine.
type Governance struct {
	ContextStatus     ContextStatus               `json:"context_status" yaml:"context_status" validate:"omitempty,oneof=DRAFT_AI AI_READY AI_ANALYSIS_RUN HUMAN_CONFIRMED LOCKED"`
	ContextValidUntil *time.Time                  `json:"context_valid_until,omitempty" yaml:"context_valid_until,omitempty"`
	SectionApprovals  map[Section]SectionApproval `json:"section_approvals,omitempty" yaml:"section_approvals,omitempty" validate:"dive"`
	ModelSuggested    bool                        `json:"model_suggested" yaml:"model_suggested"`
	HumanOverrides    []string                    `json:"human_overrides,omitempty" yaml:"human_overrides,omitempty"`
	ContextConfidence ContextConfidence           `json:"context_confidence" yaml:"context_confidence"`
	QualityScore      int                         `json:"quality_score" yaml:"quality_score"`
	ValidationStatus  ValidationStatus            `json:"validation_status,omitempty" yaml:"validation_status,omitempty"`
	ContextHash       string                      `json:"context_hash,omitempty" yaml:"context_hash,omitempty"`
	ContextVersion    int                         `json:"context_version" yaml:"context_version"`
	LastReviewed      *time.Time                  `json:"last_reviewed,omitempty" yaml:"last_reviewed,omitempty"`
	ReviewedBy        string                      `json:"reviewed_by,omitempty" yaml:"reviewed_by,omitempty"`
	CMOSafe           bool                        `json:"cmo_safe" yaml:"cmo_safe"`
}

// Status returns the lifecycle status, treating an unset status as DRAFT_AI.
func (g Governance) Status() ContextStatus {
	if g.ContextStatus == "" {
		return StatusDraftAI
	}
	return g.ContextStatus
}

// Approved reports whether section s carries an explicit human approval.
func (g Governance) Approved(s Section) bool {
	a, ok := g.SectionApprovals[s]
	return ok && a.IsApproved()
}

// Expired reports whether context_valid_until lies before now.
func (g Governance) Expired(now time.Time) bool {
	return g.ContextValidUntil != nil && g.ContextValidUntil.Before(now)
}

// Clone returns a deep copy of c.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}
	out := *c
	out.Brand.PrimaryGeography = slices.Clone(c.Brand.PrimaryGeography)

	out.CategoryDefinition.AlternativeCategories = slices.Clone(c.CategoryDefinition.AlternativeCategories)
	out.CategoryDefinition.Included = slices.Clone(c.CategoryDefinition.Included)
	out.CategoryDefinition.Excluded = slices.Clone(c.CategoryDefinition.Excluded)

	out.Competitors.Competitors = slices.Clone(c.Competitors.Competitors)

	out.DemandDefinition.BrandKeywords.SeedTerms = slices.Clone(c.DemandDefinition.BrandKeywords.SeedTerms)
	out.DemandDefinition.NonBrandKeywords.CategoryTerms = slices.Clone(c.DemandDefinition.NonBrandKeywords.CategoryTerms)
	out.DemandDefinition.NonBrandKeywords.ProblemTerms = slices.Clone(c.DemandDefinition.NonBrandKeywords.ProblemTerms)
	out.DemandDefinition.IncludedTerms = slices.Clone(c.DemandDefinition.IncludedTerms)
	out.DemandDefinition.ExcludedTerms = slices.Clone(c.DemandDefinition.ExcludedTerms)

	out.StrategicIntent.SecondaryGoals = slices.Clone(c.StrategicIntent.SecondaryGoals)
	out.StrategicIntent.Avoid = slices.Clone(c.StrategicIntent.Avoid)

	out.ChannelContext.Channels = slices.Clone(c.ChannelContext.Channels)

	out.NegativeScope.ExcludedCategories = cloneEntries(c.NegativeScope.ExcludedCategories)
	out.NegativeScope.ExcludedKeywords = cloneEntries(c.NegativeScope.ExcludedKeywords)
	out.NegativeScope.ExcludedUseCases = cloneEntries(c.NegativeScope.ExcludedUseCases)
	out.NegativeScope.ExcludedCompetitors = cloneEntries(c.NegativeScope.ExcludedCompetitors)
	out.NegativeScope.AuditLog = slices.Clone(c.NegativeScope.AuditLog)

	out.Governance = c.Governance.Clone()
	return &out
}

// Clone returns a deep copy of g.
func (g Governance) Clone() Governance {
	out := g
	out.ContextValidUntil = cloneTime(g.ContextValidUntil)
	out.LastReviewed = cloneTime(g.LastReviewed)
	out.HumanOverrides = slices.Clone(g.HumanOverrides)
	if g.SectionApprovals != nil {
		out.SectionApprovals = make(map[Section]SectionApproval, len(g.SectionApprovals))
		for k, v := range g.SectionApprovals {
			v.ApprovedAt = cloneTime(v.ApprovedAt)
			out.SectionApprovals[k] = v
		}
	}
	return out
}

func cloneEntries(in []ExclusionEntry) []ExclusionEntry {
	if in == nil {
		return nil
	}
	out := make([]ExclusionEntry, len(in))
	for i, e := range in {
		e.TTL = cloneTime(e.TTL)
		out[i] = e
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
