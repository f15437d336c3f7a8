// Package snapshot builds immutable, hashed views of a configuration and
// decides whether module execution may proceed against it.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
	"github.com/pisanocami/usercontextrecord-sub002/internal/validation"
)

// UCRSnapshot is a point-in-time read of a configuration and its validation.
// Execution records reference it by Hash so later edits cannot rewrite what a
// past decision was based on.
type UCRSnapshot struct {
	ConfigurationID string                          `json:"configurationId"`
	TenantID        string                          `json:"tenantId"`
	UserID          string                          `json:"userId"`
	Configuration   *ucr.Configuration              `json:"configuration"`
	Validation      validation.FullValidationResult `json:"validation"`
	Hash            string                          `json:"snapshotHash"`
	At              time.Time                       `json:"snapshotAt"`
}

// Ref is the fingerprint attached to every gated response.
type Ref struct {
	Hash        string    `json:"hash"`
	ValidatedAt time.Time `json:"validatedAt"`
	IsCMOSafe   bool      `json:"isCMOSafe"`
}

// CreateSnapshot deep copies cfg and binds it to result and its hash.
func CreateSnapshot(cfg *ucr.Configuration, result validation.FullValidationResult, at time.Time) *UCRSnapshot {
	copied := cfg.Clone()
	s := &UCRSnapshot{
		Configuration: copied,
		Validation:    result,
		Hash:          Hash(copied),
		At:            at,
	}
	if copied != nil {
		s.ConfigurationID = copied.ID
		s.TenantID = copied.TenantID
		s.UserID = copied.UserID
	}
	return s
}

// Ref returns the snapshot fingerprint.
func (s *UCRSnapshot) Ref() Ref {
	if s == nil {
		return Ref{}
	}
	return Ref{
		Hash:        s.Hash,
		ValidatedAt: s.Validation.ValidatedAt,
		IsCMOSafe:   s.Validation.IsCMOSafe,
	}
}

// Hash fingerprints the safety-relevant fields of cfg: brand domain, primary
// category, competitor domains, the four exclusion lists and hard_exclusion.
// Values are trimmed, lowercased and sorted so list order and casing do not
// affect the result. Exclusion TTLs are not part of the hash.
func Hash(cfg *ucr.Configuration) string {
	if cfg == nil {
		return ""
	}

	domains := make([]string, 0, len(cfg.Competitors.Competitors))
	for _, c := range cfg.Competitors.Competitors {
		domains = append(domains, c.Domain)
	}

	// Map keys are emitted sorted by encoding/json.
	canonical := map[string]any{
		"brand_domain":         canonicalValue(cfg.Brand.Domain),
		"primary_category":     canonicalValue(cfg.CategoryDefinition.PrimaryCategory),
		"competitor_domains":   canonicalList(domains),
		"excluded_categories":  canonicalList(values(cfg.NegativeScope.ExcludedCategories)),
		"excluded_keywords":    canonicalList(values(cfg.NegativeScope.ExcludedKeywords)),
		"excluded_use_cases":   canonicalList(values(cfg.NegativeScope.ExcludedUseCases)),
		"excluded_competitors": canonicalList(values(cfg.NegativeScope.ExcludedCompetitors)),
		"hard_exclusion":       cfg.NegativeScope.EnforcementRules.HardExclusion,
	}

	// Strings and bools only; Marshal cannot fail here.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func values(entries []ucr.ExclusionEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

func canonicalValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func canonicalList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if c := canonicalValue(v); c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
