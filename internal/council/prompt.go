package council

import (
	"encoding/json"
	"fmt"
	"strings"
)

const perspectiveFormat = `Respond with a single JSON object and nothing else:
{"summary": string, "keyPoints": [string], "recommendations": [string],
 "concerns": [string], "confidenceLevel": number between 0 and 1, "reasoning": string}`

const synthesisFormat = `Respond with a single JSON object and nothing else:
{"primaryAction": string, "supportingActions": [string], "timing": string,
 "expectedImpact": string, "confidence": number between 0 and 1,
 "keyAgreements": [string],
 "keyConflicts": [{"issue": string, "councils": [string], "resolution": string, "rationale": string}]}`

func perspectivePrompt(c Council, moduleData any, brandContext string) (string, error) {
	data, err := json.MarshalIndent(moduleData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding module data: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(c.Prompt))
	b.WriteString("\n\nExpertise: ")
	b.WriteString(strings.Join(c.Expertise, ", "))
	b.WriteString("\n\nBrand context:\n")
	b.WriteString(strings.TrimSpace(brandContext))
	b.WriteString("\n\nModule output:\n")
	b.Write(data)
	b.WriteString("\n\n")
	b.WriteString(perspectiveFormat)
	return b.String(), nil
}

func synthesisPrompt(perspectives []Perspective) (string, error) {
	data, err := json.MarshalIndent(perspectives, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding perspectives: %w", err)
	}

	var b strings.Builder
	b.WriteString("You merge the perspectives of independent councils into one recommendation.\n")
	b.WriteString("Pick a primary action and supporting actions. List where the councils agree.\n")
	b.WriteString("For every conflict give the proposed resolution and its rationale.\n\n")
	b.WriteString("Perspectives:\n")
	b.Write(data)
	b.WriteString("\n\n")
	b.WriteString(synthesisFormat)
	return b.String(), nil
}
