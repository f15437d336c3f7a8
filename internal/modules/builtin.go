package modules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// ErrNoSnapshot is returned when a module runs without a snapshot.
var ErrNoSnapshot = errors.New("module input has no snapshot")

// Builtins returns the built-in modules.
func Builtins() []Module {
	return []Module{
		CategoryVisibility{},
		CompetitiveLandscape{},
		DemandCoverage{},
		StrategicFit{},
	}
}

func configOf(in Input) (*ucr.Configuration, error) {
	if in.Snapshot == nil || in.Snapshot.Configuration == nil {
		return nil, ErrNoSnapshot
	}
	return in.Snapshot.Configuration, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CategoryVisibility measures how much of the category definition is
// represented in the demand keyword set.
type CategoryVisibility struct{}

func (CategoryVisibility) ID() string   { return "category-visibility" }
func (CategoryVisibility) Name() string { return "Category Visibility" }
func (CategoryVisibility) Description() string {
	return "Coverage of the category definition by tracked demand keywords."
}

func (m CategoryVisibility) Execute(ctx context.Context, in Input) (Output, error) {
	cfg, err := configOf(in)
	if err != nil {
		return Output{}, err
	}

	terms := append(append([]string{}, cfg.DemandDefinition.NonBrandKeywords.CategoryTerms...),
		cfg.DemandDefinition.IncludedTerms...)
	categories := append([]string{cfg.CategoryDefinition.PrimaryCategory}, cfg.CategoryDefinition.Included...)

	var covered, gaps []string
	for _, c := range categories {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if sharesWord(c, terms) {
			covered = append(covered, c)
		} else {
			gaps = append(gaps, c)
		}
	}

	total := len(covered) + len(gaps)
	coverage := 0.0
	if total > 0 {
		coverage = float64(len(covered)) / float64(total)
	}

	out := newOutput(m.ID())
	out.Confidence = round2(0.5 + coverage/2)
	out.Insights = append(out.Insights, fmt.Sprintf("%d of %d category segments are covered by demand keywords", len(covered), total))
	for _, g := range gaps {
		out.Recommendations = append(out.Recommendations, fmt.Sprintf("Add demand keywords for %s", g))
	}
	if len(gaps) == 0 && total > 0 {
		out.Recommendations = append(out.Recommendations, fmt.Sprintf("Defend visibility in %s", cfg.CategoryDefinition.PrimaryCategory))
	}
	if total == 0 {
		out.Status = StatusPartial
	}
	out.Raw["coverage"] = round2(coverage)
	out.Raw["covered"] = nonNil(covered)
	out.Raw["gaps"] = nonNil(gaps)
	return out, nil
}

// CompetitiveLandscape summarizes the competitor set by tier and review state.
type CompetitiveLandscape struct{}

func (CompetitiveLandscape) ID() string   { return "competitive-landscape" }
func (CompetitiveLandscape) Name() string { return "Competitive Landscape" }
func (CompetitiveLandscape) Description() string {
	return "Competitor tiers, review state and benchmarking priorities."
}

func (m CompetitiveLandscape) Execute(ctx context.Context, in Input) (Output, error) {
	cfg, err := configOf(in)
	if err != nil {
		return Output{}, err
	}

	tiers := map[string]int{}
	approved, pending := 0, 0
	out := newOutput(m.ID())
	for _, c := range cfg.Competitors.Competitors {
		tiers[string(c.Tier)]++
		switch c.Status {
		case ucr.ApprovalApproved:
			approved++
			if c.Tier == ucr.Tier1 {
				out.Recommendations = append(out.Recommendations, fmt.Sprintf("Benchmark share of voice against %s", displayName(c)))
			}
		case ucr.ApprovalPending, "":
			pending++
		}
	}

	out.Insights = append(out.Insights,
		fmt.Sprintf("%d competitors tracked: %d tier1, %d tier2, %d tier3", len(cfg.Competitors.Competitors), tiers["tier1"], tiers["tier2"], tiers["tier3"]))
	if pending > 0 {
		out.Insights = append(out.Insights, fmt.Sprintf("%d competitors await human review", pending))
		out.Recommendations = append(out.Recommendations, "Review pending competitors before the next analysis run")
	}

	total := len(cfg.Competitors.Competitors)
	if total == 0 {
		out.Status = StatusPartial
	} else {
		out.Confidence = round2(0.4 + 0.6*float64(approved)/float64(total))
	}
	out.Raw["tiers"] = tiers
	out.Raw["approved"] = approved
	out.Raw["pending"] = pending
	return out, nil
}

// DemandCoverage reports the breadth of the demand definition.
type DemandCoverage struct{}

func (DemandCoverage) ID() string   { return "demand-coverage" }
func (DemandCoverage) Name() string { return "Demand Coverage" }
func (DemandCoverage) Description() string {
	return "Breadth of brand, category and problem demand terms."
}

func (m DemandCoverage) Execute(ctx context.Context, in Input) (Output, error) {
	cfg, err := configOf(in)
	if err != nil {
		return Output{}, err
	}
	d := cfg.DemandDefinition

	counts := map[string]int{
		"seed_terms":     len(d.BrandKeywords.SeedTerms),
		"category_terms": len(d.NonBrandKeywords.CategoryTerms),
		"problem_terms":  len(d.NonBrandKeywords.ProblemTerms),
		"excluded_terms": len(d.ExcludedTerms),
	}

	out := newOutput(m.ID())
	filled := 0
	for _, k := range []string{"seed_terms", "category_terms", "problem_terms"} {
		if counts[k] > 0 {
			filled++
		}
	}
	out.Confidence = round2(float64(filled) / 3)
	out.Insights = append(out.Insights, fmt.Sprintf("Tracking %d brand, %d category and %d problem terms",
		counts["seed_terms"], counts["category_terms"], counts["problem_terms"]))
	if counts["problem_terms"] == 0 {
		out.Recommendations = append(out.Recommendations, "Research problem-led queries for the category")
	}
	for _, p := range d.NonBrandKeywords.ProblemTerms {
		out.Recommendations = append(out.Recommendations, fmt.Sprintf("Create content answering %q", p))
	}
	if d.BrandKeywords.TopN > 0 {
		out.Raw["top_n"] = d.BrandKeywords.TopN
	}
	if filled < 3 {
		out.Status = StatusPartial
	}
	out.Raw["counts"] = counts
	return out, nil
}

// StrategicFit relates the strategic intent to the channel mix.
type StrategicFit struct{}

func (StrategicFit) ID() string   { return "strategic-fit" }
func (StrategicFit) Name() string { return "Strategic Fit" }
func (StrategicFit) Description() string {
	return "Alignment of goals, risk tolerance and channel mix."
}

func (m StrategicFit) Execute(ctx context.Context, in Input) (Output, error) {
	cfg, err := configOf(in)
	if err != nil {
		return Output{}, err
	}
	s := cfg.StrategicIntent
	ch := cfg.ChannelContext

	out := newOutput(m.ID())
	out.Confidence = 0.5
	if s.PrimaryGoal != "" {
		out.Insights = append(out.Insights, fmt.Sprintf("Primary goal: %s", s.PrimaryGoal))
		out.Recommendations = append(out.Recommendations, fmt.Sprintf("Prioritize initiatives that %s", s.PrimaryGoal))
		out.Confidence += 0.2
	} else {
		out.Status = StatusPartial
	}
	for _, g := range s.SecondaryGoals {
		out.Recommendations = append(out.Recommendations, fmt.Sprintf("Support %s", g))
	}
	if s.RiskTolerance == "low" && ch.PaidMediaActive {
		out.Insights = append(out.Insights, "Paid media is active under a low risk tolerance")
	}
	if len(ch.Channels) > 0 {
		out.Insights = append(out.Insights, fmt.Sprintf("Active channels: %s", strings.Join(ch.Channels, ", ")))
		out.Confidence += 0.2
	}
	out.Confidence = round2(min(out.Confidence, 1))
	out.Raw["risk_tolerance"] = s.RiskTolerance
	out.Raw["channels"] = nonNil(ch.Channels)
	out.Raw["avoid"] = nonNil(s.Avoid)
	return out, nil
}

func newOutput(id string) Output {
	return Output{
		ModuleID:        id,
		Status:          StatusComplete,
		Insights:        []string{},
		Recommendations: []string{},
		Raw:             map[string]any{},
	}
}

func displayName(c ucr.Competitor) string {
	if c.Name != "" {
		return c.Name
	}
	return c.Domain
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// sharesWord reports whether any word of phrase longer than three characters
// appears in one of terms.
func sharesWord(phrase string, terms []string) bool {
	for _, w := range strings.Fields(strings.ToLower(phrase)) {
		if len(w) <= 3 {
			continue
		}
		for _, t := range terms {
			if strings.Contains(strings.ToLower(t), w) {
				return true
			}
		}
	}
	return false
}
