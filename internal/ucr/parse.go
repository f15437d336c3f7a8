package ucr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed is returned when a document cannot be decoded into a
// Configuration or carries structurally illegal values.
var ErrMalformed = errors.New("malformed configuration")

// MissingSectionsError reports sections absent from a raw document. Absence is
// distinct from an incomplete section, which is scored by validation instead.
type MissingSectionsError struct {
	Sections []Section
}

func (e *MissingSectionsError) Error() string {
	names := make([]string, len(e.Sections))
	for i, s := range e.Sections {
		names[i] = string(s)
	}
	return fmt.Sprintf("configuration is missing sections: %s", strings.Join(names, ", "))
}

// FieldError is one structural problem found at the boundary.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Value string `json:"value,omitempty"`
}

// StructureError collects every structural problem in a document.
type StructureError struct {
	Fields []FieldError
}

func (e *StructureError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s failed %q", f.Field, f.Rule)
	}
	return fmt.Sprintf("%s: %s", ErrMalformed, strings.Join(parts, "; "))
}

// Unwrap lets callers match StructureError with errors.Is(err, ErrMalformed).
func (e *StructureError) Unwrap() error {
	return ErrMalformed
}

// structValidate is the validator instance for configuration documents.
var structValidate *validator.Validate

func init() {
	structValidate = validator.New()
	structValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ParseConfiguration decodes a JSON document into a Configuration.
//
// It fails with *MissingSectionsError when any of the eight sections is absent
// or null, and with *StructureError (matching ErrMalformed) when enum fields
// hold unknown values or exclusion entries lack a value. A successful parse
// says nothing about completeness; run validation.ValidateConfiguration for that.
func ParseConfiguration(data []byte) (*Configuration, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var missing []Section
	for _, s := range AllSections() {
		v, ok := raw[string(s)]
		if !ok || isNull(v) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingSectionsError{Sections: missing}
	}

	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	Normalize(&cfg)
	if err := CheckStructure(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CheckStructure runs the boundary rules against an already typed
// Configuration. Stores that accept typed values call it on write.
func CheckStructure(cfg *Configuration) error {
	var fields []FieldError

	if err := structValidate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field: trimNamespace(fe.Namespace()),
				Rule:  fe.Tag(),
				Value: fmt.Sprint(fe.Value()),
			})
		}
	}

	for s := range cfg.Governance.SectionApprovals {
		if !s.Valid() {
			fields = append(fields, FieldError{
				Field: "governance.section_approvals",
				Rule:  "section",
				Value: string(s),
			})
		}
	}

	if len(fields) > 0 {
		return &StructureError{Fields: fields}
	}
	return nil
}

// Normalize trims exclusion values and fills defaults that the boundary
// accepts as omitted.
func Normalize(cfg *Configuration) {
	normalizeEntries(cfg.NegativeScope.ExcludedCategories)
	normalizeEntries(cfg.NegativeScope.ExcludedKeywords)
	normalizeEntries(cfg.NegativeScope.ExcludedUseCases)
	normalizeEntries(cfg.NegativeScope.ExcludedCompetitors)

	for i := range cfg.Competitors.Competitors {
		c := &cfg.Competitors.Competitors[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Domain = strings.TrimSpace(c.Domain)
		if c.Status == "" {
			c.Status = ApprovalPending
		}
	}

	cfg.Brand.Domain = strings.TrimSpace(cfg.Brand.Domain)
	cfg.CategoryDefinition.PrimaryCategory = strings.TrimSpace(cfg.CategoryDefinition.PrimaryCategory)
	if cfg.Governance.ContextStatus == "" {
		cfg.Governance.ContextStatus = StatusDraftAI
	}
}

func normalizeEntries(entries []ExclusionEntry) {
	for i := range entries {
		entries[i].Value = strings.TrimSpace(entries[i].Value)
		if entries[i].MatchType == "" {
			entries[i].MatchType = MatchExact
		}
	}
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// trimNamespace drops the root struct name from a validator namespace.
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
