package council

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseable is returned when a model answer holds no usable JSON object.
var ErrUnparseable = errors.New("unparseable model output")

// extractJSON returns the outermost JSON object in text, tolerating code
// fences and prose around it.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", ErrUnparseable
	}
	return text[start : end+1], nil
}

// ParsePerspective decodes a council answer. An answer with neither a summary
// nor a recommendation is rejected.
func ParsePerspective(councilID, text string) (*Perspective, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var p Perspective
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	p.CouncilID = councilID
	p.Summary = strings.TrimSpace(p.Summary)
	p.KeyPoints = nonBlank(p.KeyPoints)
	p.Recommendations = nonBlank(p.Recommendations)
	p.Concerns = nonBlank(p.Concerns)
	p.ConfidenceLevel = clamp01(p.ConfidenceLevel)
	if p.Summary == "" && len(p.Recommendations) == 0 {
		return nil, fmt.Errorf("%w: no summary or recommendations", ErrUnparseable)
	}
	return &p, nil
}

// synthesisAnswer is the shape requested from the synthesis call.
type synthesisAnswer struct {
	PrimaryAction     string     `json:"primaryAction"`
	SupportingActions []string   `json:"supportingActions"`
	Timing            string     `json:"timing"`
	ExpectedImpact    string     `json:"expectedImpact"`
	Confidence        float64    `json:"confidence"`
	KeyAgreements     []string   `json:"keyAgreements"`
	KeyConflicts      []Conflict `json:"keyConflicts"`
}

// parseSynthesis decodes a synthesis answer. Consensus is computed from the
// counts, never read from the answer.
func parseSynthesis(text string, perspectives []Perspective) (Synthesis, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Synthesis{}, err
	}
	var a synthesisAnswer
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Synthesis{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	primary := strings.TrimSpace(a.PrimaryAction)
	if primary == "" {
		return Synthesis{}, fmt.Errorf("%w: no primary action", ErrUnparseable)
	}

	agreements := nonBlank(a.KeyAgreements)
	conflicts := make([]Conflict, 0, len(a.KeyConflicts))
	for _, c := range a.KeyConflicts {
		if strings.TrimSpace(c.Issue) == "" {
			continue
		}
		conflicts = append(conflicts, c)
	}

	return Synthesis{
		UnifiedRecommendation: UnifiedRecommendation{
			PrimaryAction:     primary,
			SupportingActions: nonBlank(a.SupportingActions),
			Timing:            strings.TrimSpace(a.Timing),
			ExpectedImpact:    strings.TrimSpace(a.ExpectedImpact),
			Confidence:        clamp01(a.Confidence),
		},
		ConsensusLevel:       ConsensusLevel(len(agreements), len(conflicts)),
		KeyAgreements:        agreements,
		KeyConflicts:         conflicts,
		ContributingCouncils: councilIDs(perspectives),
	}, nil
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
