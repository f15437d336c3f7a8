// Package modules defines analysis modules and the registry they are looked up
// from. Modules only ever see a gated snapshot, never a live configuration.
package modules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
)

// Module status values.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// ErrDuplicateModule is returned when a module id is registered twice.
var ErrDuplicateModule = errors.New("module already registered")

// Input is what a module runs against.
type Input struct {
	Snapshot *snapshot.UCRSnapshot
}

// Output is the raw result of a module run.
type Output struct {
	ModuleID        string         `json:"moduleId"`
	Status          string         `json:"status"`
	Confidence      float64        `json:"confidence"`
	Insights        []string       `json:"insights"`
	Recommendations []string       `json:"recommendations"`
	Raw             map[string]any `json:"raw"`
}

// Module is an analysis step gated by the snapshot gate.
type Module interface {
	ID() string
	Name() string
	Description() string
	Execute(ctx context.Context, in Input) (Output, error)
}

// Info describes a registered module.
type Info struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Councils    []string `json:"councils,omitempty"`
}

// Registry holds modules by id.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// NewDefaultRegistry creates a Registry holding the built-in modules.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, m := range Builtins() {
		// Built-in ids are distinct.
		_ = r.Register(m)
	}
	return r
}

// Register adds m to the registry.
func (r *Registry) Register(m Module) error {
	id := strings.TrimSpace(m.ID())
	if id == "" {
		return fmt.Errorf("module id is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, id)
	}
	r.modules[id] = m
	return nil
}

// Get returns the module with id.
func (r *Registry) Get(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// List describes every module, sorted by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, Info{ID: m.ID(), Name: m.Name(), Description: m.Description()})
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.ID, b.ID) })
	return out
}
