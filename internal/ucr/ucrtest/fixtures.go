// Package ucrtest provides Configuration fixtures shared by tests.
package ucrtest

import (
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// Approver is the human recorded on fixture approvals.
const Approver = "cmo@acme.com"

// ValidConfiguration returns a complete, human-approved configuration for
// acme.com whose only exclusion is the keyword "layoffs". It validates cleanly
// and stays unexpired for 30 days after now.
func ValidConfiguration(now time.Time) *ucr.Configuration {
	validUntil := now.Add(30 * 24 * time.Hour)
	approvedAt := now.Add(-time.Hour)

	approvals := make(map[ucr.Section]ucr.SectionApproval, len(ucr.AllSections()))
	for _, s := range ucr.AllSections() {
		approvals[s] = ucr.SectionApproval{
			Status:     ucr.ApprovalApproved,
			ApprovedBy: Approver,
			ApprovedAt: &approvedAt,
		}
	}

	return &ucr.Configuration{
		ID:       "ctx-acme",
		TenantID: "tenant-acme",
		UserID:   "user-1",
		Name:     "Acme primary context",
		Brand: ucr.Brand{
			Name:             "Acme",
			Domain:           "acme.com",
			Industry:         "Home Goods",
			BusinessModel:    "DTC",
			PrimaryGeography: []string{"US"},
		},
		CategoryDefinition: ucr.CategoryDefinition{
			PrimaryCategory:       "smart kitchen appliances",
			AlternativeCategories: []string{"connected cookware"},
			Included:              []string{"blenders", "air fryers"},
			Excluded:              []string{"commercial kitchen equipment"},
		},
		Competitors: ucr.Competitors{
			Competitors: []ucr.Competitor{
				{
					Name:    "Globex",
					Domain:  "globex.com",
					Tier:    ucr.Tier1,
					Status:  ucr.ApprovalApproved,
					AddedBy: ucr.OriginHuman,
				},
			},
		},
		DemandDefinition: ucr.DemandDefinition{
			BrandKeywords: ucr.BrandKeywords{
				SeedTerms: []string{"acme blender"},
				TopN:      20,
			},
			NonBrandKeywords: ucr.NonBrandKeywords{
				CategoryTerms: []string{"smart blender"},
				ProblemTerms:  []string{"quick healthy breakfast"},
			},
		},
		StrategicIntent: ucr.StrategicIntent{
			GrowthPriority: "market share",
			RiskTolerance:  "medium",
			PrimaryGoal:    "grow share of search",
			SecondaryGoals: []string{"expand direct sales"},
			Avoid:          []string{"aggressive discounting tactics"},
		},
		ChannelContext: ucr.ChannelContext{
			SEOInvestmentLevel:    "medium",
			MarketplaceDependence: "low",
			Channels:              []string{"seo", "paid_search"},
		},
		NegativeScope: ucr.NegativeScope{
			ExcludedKeywords: []ucr.ExclusionEntry{
				{
					Value:     "layoffs",
					MatchType: ucr.MatchExact,
					AddedBy:   ucr.OriginHuman,
					Reason:    "brand safety",
				},
			},
			EnforcementRules: ucr.EnforcementRules{
				HardExclusion:                    true,
				RequireHumanOverrideForExpansion: true,
			},
		},
		Governance: ucr.Governance{
			ContextStatus:     ucr.StatusAIReady,
			ContextValidUntil: &validUntil,
			SectionApprovals:  approvals,
			ContextConfidence: ucr.ContextConfidence{Level: "high"},
			ContextVersion:    1,
		},
		CreatedAt: now.Add(-48 * time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
}
