package execution

import (
	"context"
	"sync"
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
)

// ExecutionRecord is the persisted trace of one module run. It references the
// configuration by snapshot hash only.
type ExecutionRecord struct {
	ID              string                   `json:"id"`
	ContextID       string                   `json:"context_id"`
	TenantID        string                   `json:"tenant_id"`
	UserID          string                   `json:"user_id"`
	ModuleID        string                   `json:"module_id"`
	Status          string                   `json:"status"`
	Confidence      float64                  `json:"confidence"`
	Insights        []string                 `json:"insights"`
	Recommendations []string                 `json:"recommendations"`
	RawOutput       map[string]any           `json:"raw_output"`
	Perspectives    []council.Perspective    `json:"perspectives,omitempty"`
	Synthesis       *council.Synthesis       `json:"synthesis,omitempty"`
	GuardrailStatus *council.GuardrailStatus `json:"guardrail_status,omitempty"`
	SnapshotHash    string                   `json:"snapshot_hash"`
	CreatedAt       time.Time                `json:"created_at"`
}

// RecordSink persists execution records. Publishing is best effort; a sink
// error never fails the run that produced the record.
type RecordSink interface {
	Publish(ctx context.Context, rec ExecutionRecord) error
}

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []ExecutionRecord
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish implements RecordSink.
func (m *MemorySink) Publish(ctx context.Context, rec ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of every published record in publish order.
func (m *MemorySink) Records() []ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// ByContext returns the records published for contextID.
func (m *MemorySink) ByContext(contextID string) []ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExecutionRecord
	for _, r := range m.records {
		if r.ContextID == contextID {
			out = append(out, r)
		}
	}
	return out
}

// NopSink discards records.
type NopSink struct{}

// Publish implements RecordSink.
func (NopSink) Publish(context.Context, ExecutionRecord) error { return nil }
