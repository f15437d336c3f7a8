// Package council fans a module's output out to independent reasoning
// councils, synthesizes their perspectives into one recommendation and screens
// that recommendation against the configuration's guardrails.
package council

// InsufficientData is the primary action of an empty synthesis.
const InsufficientData = "Insufficient data for recommendations"

// Perspective is one council's reading of a module output.
type Perspective struct {
	CouncilID       string   `json:"councilId"`
	Summary         string   `json:"summary"`
	KeyPoints       []string `json:"keyPoints"`
	Recommendations []string `json:"recommendations"`
	Concerns        []string `json:"concerns"`
	ConfidenceLevel float64  `json:"confidenceLevel"`
	Reasoning       string   `json:"reasoning"`
}

// UnifiedRecommendation is the merged recommendation of a synthesis.
type UnifiedRecommendation struct {
	PrimaryAction     string   `json:"primaryAction"`
	SupportingActions []string `json:"supportingActions"`
	Timing            string   `json:"timing"`
	ExpectedImpact    string   `json:"expectedImpact"`
	Confidence        float64  `json:"confidence"`
}

// Conflict is a disagreement between councils and how it was resolved.
type Conflict struct {
	Issue      string   `json:"issue"`
	Councils   []string `json:"councils,omitempty"`
	Resolution string   `json:"resolution"`
	Rationale  string   `json:"rationale"`
}

// Synthesis merges a set of perspectives. ConsensusLevel is always derived
// from the agreement and conflict counts.
type Synthesis struct {
	UnifiedRecommendation UnifiedRecommendation `json:"unifiedRecommendation"`
	ConsensusLevel        float64               `json:"consensusLevel"`
	KeyAgreements         []string              `json:"keyAgreements"`
	KeyConflicts          []Conflict            `json:"keyConflicts"`
	ContributingCouncils  []string              `json:"contributingCouncils"`
	Fallback              bool                  `json:"fallback,omitempty"`
}

// FailedCouncil records a council dropped from a fan-out.
type FailedCouncil struct {
	CouncilID string `json:"councilId"`
	Error     string `json:"error"`
}

// FanOutResult holds the perspectives that came back, in fan-out order.
type FanOutResult struct {
	ModuleID     string          `json:"moduleId"`
	Councils     []string        `json:"councils"`
	Perspectives []Perspective   `json:"perspectives"`
	Failed       []FailedCouncil `json:"failed,omitempty"`
}

// ConsensusLevel is agreements / (agreements + conflicts), or 0.5 when both
// are zero.
func ConsensusLevel(agreements, conflicts int) float64 {
	if agreements+conflicts == 0 {
		return 0.5
	}
	return float64(agreements) / float64(agreements+conflicts)
}

// EmptySynthesis is returned when no perspective is available.
func EmptySynthesis() Synthesis {
	return Synthesis{
		UnifiedRecommendation: UnifiedRecommendation{
			PrimaryAction:     InsufficientData,
			SupportingActions: []string{},
		},
		ConsensusLevel:       0,
		KeyAgreements:        []string{},
		KeyConflicts:         []Conflict{},
		ContributingCouncils: []string{},
	}
}

// FallbackSynthesis merges perspectives without a model call. The primary
// action is the first recommendation in fan-out order and the next three
// become supporting actions. Confidence is the mean confidence.
func FallbackSynthesis(perspectives []Perspective) Synthesis {
	if len(perspectives) == 0 {
		return EmptySynthesis()
	}

	var recs []string
	total := 0.0
	for _, p := range perspectives {
		recs = append(recs, nonBlank(p.Recommendations)...)
		total += p.ConfidenceLevel
	}

	s := Synthesis{
		UnifiedRecommendation: UnifiedRecommendation{
			PrimaryAction:     InsufficientData,
			SupportingActions: []string{},
			Confidence:        total / float64(len(perspectives)),
		},
		ConsensusLevel:       ConsensusLevel(0, 0),
		KeyAgreements:        []string{},
		KeyConflicts:         []Conflict{},
		ContributingCouncils: councilIDs(perspectives),
		Fallback:             true,
	}
	if len(recs) > 0 {
		s.UnifiedRecommendation.PrimaryAction = recs[0]
		s.UnifiedRecommendation.SupportingActions = append(s.UnifiedRecommendation.SupportingActions, recs[1:min(len(recs), 4)]...)
	}
	return s
}

func councilIDs(perspectives []Perspective) []string {
	ids := make([]string, len(perspectives))
	for i, p := range perspectives {
		ids[i] = p.CouncilID
	}
	return ids
}
