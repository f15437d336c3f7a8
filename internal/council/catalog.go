package council

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when a catalog file cannot be used.
var ErrInvalidCatalog = errors.New("invalid council catalog")

// Council is one reasoning perspective. Prompt is never serialized.
type Council struct {
	ID                string   `toml:"id" json:"id"`
	Name              string   `toml:"name" json:"name"`
	Description       string   `toml:"description" json:"description"`
	Expertise         []string `toml:"expertise" json:"expertise"`
	DecisionAuthority float64  `toml:"decision_authority" json:"decisionAuthority"`
	IsActive          bool     `toml:"is_active" json:"isActive"`
	Prompt            string   `toml:"prompt" json:"-"`
}

// Assignment maps an analysis module to its owner and supporting councils.
type Assignment struct {
	ModuleID   string   `toml:"id" json:"moduleId"`
	Owner      string   `toml:"owner" json:"owner"`
	Supporting []string `toml:"supporting" json:"supporting"`
}

// Catalog is the static set of councils and module assignments.
type Catalog struct {
	councils    []Council
	byID        map[string]int
	assignments map[string]Assignment
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from path, or the embedded one when path is "".
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading council catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and checks a TOML catalog. It needs at least one
// council, council ids must be unique and every assignment must reference
// known councils.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Councils []Council    `toml:"councils"`
		Modules  []Assignment `toml:"modules"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if len(doc.Councils) == 0 {
		return nil, fmt.Errorf("%w: no councils defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		councils:    doc.Councils,
		byID:        make(map[string]int, len(doc.Councils)),
		assignments: make(map[string]Assignment, len(doc.Modules)),
	}
	for i, council := range doc.Councils {
		if council.ID == "" {
			return nil, fmt.Errorf("%w: council %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := c.byID[council.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate council %q", ErrInvalidCatalog, council.ID)
		}
		if council.DecisionAuthority < 0 || council.DecisionAuthority > 1 {
			return nil, fmt.Errorf("%w: council %q decision_authority must be within [0,1]", ErrInvalidCatalog, council.ID)
		}
		c.byID[council.ID] = i
	}

	for _, a := range doc.Modules {
		if a.ModuleID == "" {
			return nil, fmt.Errorf("%w: module assignment without id", ErrInvalidCatalog)
		}
		if _, dup := c.assignments[a.ModuleID]; dup {
			return nil, fmt.Errorf("%w: duplicate module %q", ErrInvalidCatalog, a.ModuleID)
		}
		for _, id := range append([]string{a.Owner}, a.Supporting...) {
			if _, ok := c.byID[id]; !ok {
				return nil, fmt.Errorf("%w: module %q references unknown council %q", ErrInvalidCatalog, a.ModuleID, id)
			}
		}
		c.assignments[a.ModuleID] = a
	}
	return c, nil
}

// Councils returns every council in catalog order.
func (c *Catalog) Councils() []Council {
	return slices.Clone(c.councils)
}

// Council returns the council with id.
func (c *Catalog) Council(id string) (Council, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Council{}, false
	}
	return c.councils[i], true
}

// Assignment returns the councils assigned to moduleID.
func (c *Catalog) Assignment(moduleID string) (Assignment, bool) {
	a, ok := c.assignments[moduleID]
	return a, ok
}

// CouncilsFor returns the owner then the supporting councils of moduleID,
// without duplicates. Unknown modules have no councils.
func (c *Catalog) CouncilsFor(moduleID string) []string {
	a, ok := c.assignments[moduleID]
	if !ok {
		return nil
	}
	out := []string{a.Owner}
	for _, id := range a.Supporting {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// ModulesOf returns the modules councilID owns and those it supports, sorted.
func (c *Catalog) ModulesOf(councilID string) (owns, supports []string) {
	owns, supports = []string{}, []string{}
	for id, a := range c.assignments {
		if a.Owner == councilID {
			owns = append(owns, id)
		} else if slices.Contains(a.Supporting, councilID) {
			supports = append(supports, id)
		}
	}
	slices.Sort(owns)
	slices.Sort(supports)
	return owns, supports
}

// rank orders council ids by catalog position; unknown ids sort last.
func (c *Catalog) rank(id string) int {
	if i, ok := c.byID[id]; ok {
		return i
	}
	return len(c.councils)
}
