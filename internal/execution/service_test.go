package execution

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/modules"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr/ucrtest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type reasonerFunc func(ctx context.Context, prompt string) (string, error)

func (f reasonerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, ExecutionRecord) error { return f.err }

// scriptedReasoner answers every council with the same recommendation and
// synthesizes primary as the unified action.
func scriptedReasoner(t *testing.T, primary string) reasonerFunc {
	t.Helper()
	return func(_ context.Context, prompt string) (string, error) {
		var v any
		if strings.HasPrefix(prompt, "You merge the perspectives") {
			v = map[string]any{
				"primaryAction":     primary,
				"supportingActions": []string{"Refresh blender landing pages"},
				"timing":            "next quarter",
				"expectedImpact":    "higher share of search",
				"confidence":        0.8,
				"keyAgreements":     []string{"blenders are under-covered"},
				"keyConflicts":      []any{},
			}
		} else {
			v = map[string]any{
				"summary":         "coverage gap",
				"keyPoints":       []string{"blenders are under-covered"},
				"recommendations": []string{primary},
				"concerns":        []string{},
				"confidenceLevel": 0.7,
				"reasoning":       "keyword coverage",
			}
		}
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return string(data), nil
	}
}

func newTestService(t *testing.T, r reasonerFunc, opts ...Option) *Service {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := func() time.Time { return testNow }

	st := store.NewMemoryStore()
	require.NoError(t, st.Put(ucrtest.ValidConfiguration(testNow)))

	catalog, err := council.DefaultCatalog()
	require.NoError(t, err)
	councils, err := council.NewService(catalog, r, council.WithLogger(logger))
	require.NoError(t, err)

	gate := snapshot.NewGate(st, snapshot.WithClock(clock), snapshot.WithLogger(logger))
	engine := guardrails.NewEngine(guardrails.WithClock(clock))

	opts = append([]Option{WithLogger(logger), WithClock(clock)}, opts...)
	s, err := NewService(gate, modules.NewDefaultRegistry(), councils, engine, opts...)
	require.NoError(t, err)
	return s
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestExecuteRecordsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := NewMemorySink()
	s := newTestService(t, scriptedReasoner(t, "unused"), WithSink(sink))

	res, err := s.Execute(context.Background(), "tenant-acme", "user-1", "category-visibility")
	require.NoError(t, err)
	require.NoError(t, <-res.Persisted)

	cfg := ucrtest.ValidConfiguration(testNow)
	assert.Equal(t, "category-visibility", res.Output.ModuleID)
	assert.Equal(t, snapshot.Hash(cfg), res.Snapshot.Hash)
	assert.True(t, res.Snapshot.IsCMOSafe)
	assert.Equal(t, testNow, res.Snapshot.ValidatedAt)

	recs := sink.ByContext("ctx-acme")
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, res.Record.ID, rec.ID)
	assert.Equal(t, "tenant-acme", rec.TenantID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, res.Snapshot.Hash, rec.SnapshotHash)
	assert.Equal(t, res.Output.Recommendations, rec.Recommendations)
	assert.Nil(t, rec.Synthesis)
	assert.Nil(t, rec.GuardrailStatus)
	assert.Equal(t, testNow, rec.CreatedAt)
}

func TestExecuteGateRejection(t *testing.T) {
	sink := NewMemorySink()
	s := newTestService(t, scriptedReasoner(t, "unused"), WithSink(sink))

	_, err := s.Execute(context.Background(), "tenant-acme", "nobody", "category-visibility")
	var rejection *GateRejection
	require.ErrorAs(t, err, &rejection)
	require.NotNil(t, rejection.Decision)
	assert.Equal(t, snapshot.ReasonNoConfiguration, rejection.Decision.Reason)
	require.NotNil(t, rejection.Decision.Validation)
	assert.False(t, rejection.Decision.Validation.IsValid)
	assert.Contains(t, err.Error(), snapshot.ReasonNoConfiguration)
	assert.Empty(t, sink.Records())
}

func TestRunRejectsRefusedDecision(t *testing.T) {
	s := newTestService(t, scriptedReasoner(t, "unused"))

	_, err := s.Run(context.Background(), nil, "category-visibility")
	var rejection *GateRejection
	assert.ErrorAs(t, err, &rejection)

	_, err = s.RunWithCouncil(context.Background(), &snapshot.Decision{Reason: snapshot.ReasonExpired}, "category-visibility")
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, snapshot.ReasonExpired, rejection.Decision.Reason)
}

func TestExecuteUnknownModule(t *testing.T) {
	s := newTestService(t, scriptedReasoner(t, "unused"))

	_, err := s.Execute(context.Background(), "tenant-acme", "user-1", "brand-sentiment")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestExecuteWithCouncilBlocksExcludedPrimaryAction(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := NewMemorySink()
	s := newTestService(t, scriptedReasoner(t, "Announce layoffs to cut costs"), WithSink(sink))

	res, err := s.ExecuteWithCouncil(context.Background(), "tenant-acme", "user-1", "category-visibility")
	require.NoError(t, err)
	require.NoError(t, <-res.Persisted)

	assert.True(t, res.Blocked())
	assert.Len(t, res.Perspectives, 3)
	assert.Empty(t, res.Failed)
	assert.Equal(t, "demand-signals", res.Perspectives[0].CouncilID)

	assert.True(t, strings.HasPrefix(res.Synthesis.UnifiedRecommendation.PrimaryAction, council.BlockMarker))
	assert.Equal(t, 0.5, res.Synthesis.UnifiedRecommendation.Confidence)
	assert.Equal(t, guardrails.EnforcementStrict, res.Guardrails.EnforcementLevel)
	require.NotEmpty(t, res.Guardrails.Violations)
	assert.Equal(t, "layoffs", res.Guardrails.Violations[0].MatchedTerm)

	recs := sink.Records()
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].GuardrailStatus)
	assert.True(t, recs[0].GuardrailStatus.RequiresHumanOverride)
	require.NotNil(t, recs[0].Synthesis)
	assert.Len(t, recs[0].Perspectives, 3)
}

func TestExecuteWithCouncilPasses(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestService(t, scriptedReasoner(t, "Publish smart blender comparison guides"))

	res, err := s.ExecuteWithCouncil(context.Background(), "tenant-acme", "user-1", "strategic-fit")
	require.NoError(t, err)
	require.NoError(t, <-res.Persisted)

	assert.False(t, res.Blocked())
	assert.True(t, res.Guardrails.Passed)
	assert.Equal(t, "Publish smart blender comparison guides", res.Synthesis.UnifiedRecommendation.PrimaryAction)
	assert.Equal(t, []string{"strategic-intelligence", "risk-governance"}, res.Synthesis.ContributingCouncils)
}

func TestExecuteWithCouncilDegradesWhenReasoningFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestService(t, func(context.Context, string) (string, error) {
		return "", errors.New("upstream unavailable")
	})

	res, err := s.ExecuteWithCouncil(context.Background(), "tenant-acme", "user-1", "category-visibility")
	require.NoError(t, err)
	require.NoError(t, <-res.Persisted)

	assert.Empty(t, res.Perspectives)
	assert.Len(t, res.Failed, 3)
	assert.Equal(t, council.InsufficientData, res.Synthesis.UnifiedRecommendation.PrimaryAction)
	assert.True(t, res.Guardrails.Passed)
}

func TestPersistenceFailureDoesNotFailRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestService(t, scriptedReasoner(t, "unused"), WithSink(failingSink{err: errors.New("sink down")}))

	ctx, cancel := context.WithCancel(context.Background())
	res, err := s.Execute(ctx, "tenant-acme", "user-1", "demand-coverage")
	cancel()
	require.NoError(t, err)
	require.NotNil(t, res)

	core, logs := observer.New(zapcore.WarnLevel)
	LogPersistence(zap.New(core), res.Record, res.Persisted)

	entries := logs.FilterMessage("failed to persist execution record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, res.Record.ID, entries[0].ContextMap()["record_id"])
	assert.Equal(t, "sink down", entries[0].ContextMap()["error"])
}

func TestPublishOutlivesRequestContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := NewMemorySink()
	s := newTestService(t, scriptedReasoner(t, "unused"), WithSink(sink))

	dec, err := snapshot.NewGate(mustStore(t), snapshot.WithClock(func() time.Time { return testNow })).
		ValidateAndGate(context.Background(), "tenant-acme", "user-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx, dec, "competitive-landscape")
	require.NoError(t, err)
	require.NoError(t, <-res.Persisted)
	assert.Len(t, sink.Records(), 1)
}

func mustStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Put(ucrtest.ValidConfiguration(testNow)))
	return st
}

func TestBrandContext(t *testing.T) {
	cfg := ucrtest.ValidConfiguration(testNow)
	got := BrandContext(&snapshot.UCRSnapshot{Configuration: cfg})

	assert.Contains(t, got, "Brand: Acme (acme.com)")
	assert.Contains(t, got, "Primary category: smart kitchen appliances")
	assert.Contains(t, got, "Primary goal: grow share of search")
	assert.Contains(t, got, "Avoid: aggressive discounting tactics")
	assert.False(t, strings.HasSuffix(got, "\n"))

	assert.Empty(t, BrandContext(nil))
}
