package ucr

// Section names one of the eight sections of a Configuration.
type Section string

const (
	SectionBrand              Section = "brand"
	SectionCategoryDefinition Section = "category_definition"
	SectionCompetitors        Section = "competitors"
	SectionDemandDefinition   Section = "demand_definition"
	SectionStrategicIntent    Section = "strategic_intent"
	SectionChannelContext     Section = "channel_context"
	SectionNegativeScope      Section = "negative_scope"
	SectionGovernance         Section = "governance"
)

// AllSections returns every section in canonical order.
func AllSections() []Section {
	return []Section{
		SectionBrand,
		SectionCategoryDefinition,
		SectionCompetitors,
		SectionDemandDefinition,
		SectionStrategicIntent,
		SectionChannelContext,
		SectionNegativeScope,
		SectionGovernance,
	}
}

// RequiredSections returns the sections whose validity gates execution.
func RequiredSections() []Section {
	return []Section{
		SectionBrand,
		SectionCategoryDefinition,
		SectionCompetitors,
		SectionDemandDefinition,
		SectionNegativeScope,
	}
}

// IsRequired reports whether errors in s block the configuration.
func (s Section) IsRequired() bool {
	for _, r := range RequiredSections() {
		if r == s {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known section name.
func (s Section) Valid() bool {
	for _, known := range AllSections() {
		if known == s {
			return true
		}
	}
	return false
}

// Title returns a human readable label used in blocked reasons.
func (s Section) Title() string {
	switch s {
	case SectionBrand:
		return "Brand"
	case SectionCategoryDefinition:
		return "Category Definition"
	case SectionCompetitors:
		return "Competitors"
	case SectionDemandDefinition:
		return "Demand Definition"
	case SectionStrategicIntent:
		return "Strategic Intent"
	case SectionChannelContext:
		return "Channel Context"
	case SectionNegativeScope:
		return "Negative Scope"
	case SectionGovernance:
		return "Governance"
	default:
		return string(s)
	}
}
