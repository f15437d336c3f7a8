package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/execution"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/modules"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr/ucrtest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type reasonerFunc func(ctx context.Context, prompt string) (string, error)

func (f reasonerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// answering returns a reasoner whose councils all recommend primary and whose
// synthesis adopts it.
func answering(primary string) reasonerFunc {
	return func(_ context.Context, prompt string) (string, error) {
		var v any
		if strings.HasPrefix(prompt, "You merge the perspectives") {
			v = map[string]any{
				"primaryAction":     primary,
				"supportingActions": []string{"Refresh blender landing pages"},
				"confidence":        0.85,
				"keyAgreements":     []string{"coverage gap on blenders"},
			}
		} else {
			v = map[string]any{
				"summary":         "coverage gap",
				"keyPoints":       []string{"blenders under-covered"},
				"recommendations": []string{primary},
				"confidenceLevel": 0.7,
				"reasoning":       "keyword coverage",
			}
		}
		data, err := json.Marshal(v)
		return string(data), err
	}
}

type testEnv struct {
	server *Server
	store  *store.MemoryStore
	sink   *execution.MemorySink
}

func newTestEnv(t *testing.T, r reasonerFunc) *testEnv {
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
	sink := execution.NewMemorySink()
	executor, err := execution.NewService(gate, modules.NewDefaultRegistry(), councils, engine,
		execution.WithSink(sink), execution.WithClock(clock), execution.WithLogger(logger))
	require.NoError(t, err)

	server, err := NewServer(Deps{
		Store:    st,
		Gate:     gate,
		Councils: councils,
		Executor: executor,
		Engine:   engine,
		Clock:    clock,
	}, zap.NewNop(), &Config{Host: "localhost", Port: 0})
	require.NoError(t, err)

	return &testEnv{server: server, store: st, sink: sink}
}

// do sends a request with the fixture identity unless headers override it.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if headers == nil {
		headers = []string{HeaderTenantID, "tenant-acme", HeaderUserID, "user-1"}
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.server.echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServer(t *testing.T) {
	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(Deps{}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when dependencies are missing", func(t *testing.T) {
		_, err := NewServer(Deps{Store: store.NewMemoryStore()}, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "snapshot gate cannot be nil")
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		env := newTestEnv(t, answering("x"))
		s, err := NewServer(env.server.deps, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8080, s.config.Port)
	})
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCouncilRoutes(t *testing.T) {
	env := newTestEnv(t, answering("Publish smart blender guides"))

	t.Run("lists councils without prompts", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/councils", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 5)
		for _, c := range got {
			assert.NotContains(t, c, "prompt")
			assert.Contains(t, c, "decisionAuthority")
		}
	})

	t.Run("council detail lists modules", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/councils/demand-signals", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode(t, rec)
		assert.Equal(t, "demand-signals", got["id"])
		assert.ElementsMatch(t, []any{"category-visibility", "demand-coverage"}, got["owns"])
	})

	t.Run("unknown council", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/councils/nope", nil).Code)
		assert.Equal(t, http.StatusNotFound,
			env.do(t, http.MethodPost, "/api/v1/councils/nope/reason", map[string]any{"moduleData": map[string]any{}}).Code)
	})

	t.Run("inactive council", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/councils/growth-experimentation/reason",
			map[string]any{"moduleData": map[string]any{"x": 1}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing module data", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/councils/risk-governance/reason", map[string]any{"brandContext": "Acme"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reasons", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/councils/risk-governance/reason",
			ReasonRequest{ModuleData: map[string]any{"coverage": 0.67}, BrandContext: "Brand: Acme"})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode(t, rec)
		assert.Equal(t, "risk-governance", got["councilId"])
		assert.Equal(t, 0.7, got["confidenceLevel"])
	})
}

func TestReasonFailureIs500(t *testing.T) {
	env := newTestEnv(t, func(context.Context, string) (string, error) {
		return "", errors.New("upstream down")
	})

	rec := env.do(t, http.MethodPost, "/api/v1/councils/risk-governance/reason",
		map[string]any{"moduleData": map[string]any{"x": 1}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "upstream down")
}

func TestSynthesize(t *testing.T) {
	env := newTestEnv(t, answering("Publish smart blender guides"))

	t.Run("malformed map", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/councils/synthesize", `{"perspectives": ["a", "b"]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing map", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/councils/synthesize", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty map", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/councils/synthesize", `{"perspectives": {}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("synthesizes in catalog order", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/councils/synthesize", SynthesizeRequest{
			Perspectives: map[string]council.Perspective{
				"risk-governance":        {Summary: "risk", Recommendations: []string{"Audit claims"}, ConfidenceLevel: 0.6},
				"strategic-intelligence": {Summary: "strategy", Recommendations: []string{"Lead with blenders"}, ConfidenceLevel: 0.8},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode(t, rec)
		assert.Equal(t, []any{"strategic-intelligence", "risk-governance"}, got["contributingCouncils"])
		unified := got["unifiedRecommendation"].(map[string]any)
		assert.Equal(t, "Publish smart blender guides", unified["primaryAction"])
	})
}

func TestListModules(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	rec := env.do(t, http.MethodGet, "/api/v1/modules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []modules.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 4)
	for _, m := range got {
		assert.NotEmpty(t, m.Councils, m.ID)
	}
}

func TestExecute(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	t.Run("requires identity headers", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/modules/category-visibility/execute", nil, HeaderTenantID, "tenant-acme")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blocked without configuration", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/modules/category-visibility/execute", nil,
			HeaderTenantID, "tenant-acme", HeaderUserID, "someone-else")
		require.Equal(t, http.StatusForbidden, rec.Code)
		got := decode(t, rec)
		assert.Equal(t, snapshot.BlockedCode, got["error"])
		assert.Equal(t, snapshot.ReasonNoConfiguration, got["message"])
		validation := got["validation"].(map[string]any)
		assert.Equal(t, false, validation["isValid"])
		assert.NotEmpty(t, validation["blockedReasons"])
	})

	t.Run("unknown module", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/modules/brand-sentiment/execute", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("executes with snapshot ref", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/modules/category-visibility/execute", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode(t, rec)
		ref := got["ucrSnapshot"].(map[string]any)
		assert.Equal(t, snapshot.Hash(ucrtest.ValidConfiguration(testNow)), ref["hash"])
		assert.Equal(t, true, ref["isCMOSafe"])
		result := got["result"].(map[string]any)
		assert.Equal(t, "category-visibility", result["moduleId"])

		assert.Eventually(t, func() bool { return len(env.sink.ByContext("ctx-acme")) > 0 },
			time.Second, 10*time.Millisecond)
	})
}

func TestExecuteWithCouncilGuardrailViolation(t *testing.T) {
	env := newTestEnv(t, answering("Announce layoffs to cut costs"))

	rec := env.do(t, http.MethodPost, "/api/v1/modules/category-visibility/execute-with-council", nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	got := decode(t, rec)
	assert.Equal(t, GuardrailViolationCode, got["error"])
	assert.Equal(t, true, got["requiresHumanOverride"])
	assert.Contains(t, got["message"], "layoffs")
	require.Contains(t, got, "result")
	require.Contains(t, got, "ucrSnapshot")

	violations := got["violations"].([]any)
	require.NotEmpty(t, violations)
	first := violations[0].(map[string]any)
	assert.Equal(t, "layoffs", first["matchedTerm"])
	assert.Equal(t, "block", first["severity"])
	assert.Equal(t, "negative_scope.excluded_keywords", first["source"])

	synthesis := got["synthesis"].(map[string]any)
	unified := synthesis["unifiedRecommendation"].(map[string]any)
	assert.True(t, strings.HasPrefix(unified["primaryAction"].(string), council.BlockMarker))
}

func TestExecuteWithCouncilPasses(t *testing.T) {
	env := newTestEnv(t, answering("Publish smart blender comparison guides"))

	rec := env.do(t, http.MethodPost, "/api/v1/modules/category-visibility/execute-with-council", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode(t, rec)
	perspectives := got["councilPerspectives"].(map[string]any)
	assert.Len(t, perspectives, 3)
	assert.Contains(t, perspectives, "demand-signals")
	status := got["guardrailStatus"].(map[string]any)
	assert.Equal(t, true, status["passed"])
	assert.Equal(t, false, status["requiresHumanOverride"])
	assert.Contains(t, got, "ucrSnapshot")
	assert.Contains(t, got, "synthesis")
}

func TestContextValidation(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	rec := env.do(t, http.MethodGet, "/api/v1/context/validation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, true, got["allowed"])
	assert.Equal(t, "AI_READY", got["contextStatus"])
	assert.ElementsMatch(t, []any{"AI_ANALYSIS_RUN", "DRAFT_AI"}, got["allowedTransitions"])
	assert.Equal(t, float64(100), got["validation"].(map[string]any)["overallScore"])

	rec = env.do(t, http.MethodGet, "/api/v1/context/validation", nil, HeaderTenantID, "tenant-acme", HeaderUserID, "nobody")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContextTransition(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	t.Run("rejects unknown status", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/context/transition", TransitionRequest{To: "SHIPPED"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blocks non adjacent transition", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/context/transition", TransitionRequest{To: ucr.StatusLocked})
		require.Equal(t, http.StatusConflict, rec.Code)
		got := decode(t, rec)
		assert.Equal(t, TransitionBlockedCode, got["error"])
		assert.Equal(t, "AI_READY", got["from"])
	})

	t.Run("applies and persists", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/context/transition", TransitionRequest{To: ucr.StatusAIAnalysisRun})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got TransitionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, ucr.StatusAIReady, got.From)
		assert.False(t, got.Rollback)
		assert.Equal(t, 2, got.Governance.ContextVersion)

		cfg, err := env.store.Active(context.Background(), "tenant-acme", "user-1")
		require.NoError(t, err)
		assert.Equal(t, ucr.StatusAIAnalysisRun, cfg.Governance.ContextStatus)
		assert.Equal(t, snapshot.Hash(cfg), cfg.Governance.ContextHash)
		assert.Equal(t, cfg.Governance.ContextHash, got.Governance.ContextHash)
	})
}

func TestGuardrailsCheck(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	t.Run("requires text", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/guardrails/check", CheckRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects oversized text", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/guardrails/check", CheckRequest{Text: strings.Repeat("a", MaxTextBytes+1)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("flags excluded keyword", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/guardrails/check", CheckRequest{
			Text:            "Plan for Layoffs next quarter",
			Recommendations: []string{"Refresh blender pages", "Brief press on layoffs"},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var got CheckResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.False(t, got.Passed)
		assert.Equal(t, 1, got.BlockedCount)
		assert.Equal(t, guardrails.EnforcementStrict, got.EnforcementLevel)
		require.NotNil(t, got.Filter)
		assert.Equal(t, []string{"Refresh blender pages"}, got.Filter.Allowed)
		assert.Equal(t, []string{"Brief press on layoffs"}, got.Filter.Blocked)
	})
}

func TestServerLifecycle(t *testing.T) {
	env := newTestEnv(t, answering("x"))

	errChan := make(chan error, 1)
	go func() {
		errChan <- env.server.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, env.server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		env := newTestEnv(t, answering("x"))
		rec := env.do(t, http.MethodGet, "/health", nil)
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		env := newTestEnv(t, answering("x"))
		env.server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = env.do(t, http.MethodGet, "/panic", nil)
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
