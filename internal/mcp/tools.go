package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/execution"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/lifecycle"
	"github.com/pisanocami/usercontextrecord-sub002/internal/logging"
	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
)

// Error codes shared with the HTTP API.
const (
	CodeUCRBlocked         = "UCR_BLOCKED"
	CodeGuardrailViolation = "GUARDRAIL_VIOLATION"
)

// GuardrailViolation is returned when a synthesized primary action needs a
// human override.
type GuardrailViolation struct {
	Status council.GuardrailStatus
}

func (e *GuardrailViolation) Error() string {
	return CodeGuardrailViolation + ": " + e.Status.Message()
}

type validateInput struct {
	TenantID string `json:"tenant_id" jsonschema:"Tenant owning the configuration"`
	UserID   string `json:"user_id" jsonschema:"User whose active configuration is used"`
}

type validateOutput struct {
	Allowed            bool     `json:"allowed" jsonschema:"Whether gated modules may run"`
	Reason             string   `json:"reason,omitempty" jsonschema:"Why the gate refused"`
	ContextStatus      string   `json:"context_status" jsonschema:"Current lifecycle status"`
	AllowedTransitions []string `json:"allowed_transitions" jsonschema:"Statuses reachable from the current one"`
	OverallScore       int      `json:"overall_score" jsonschema:"Average section score 0-100"`
	IsCMOSafe          bool     `json:"is_cmo_safe" jsonschema:"Whether the configuration is safe to present"`
	BlockedReasons     []string `json:"blocked_reasons" jsonschema:"Errors that block the configuration"`
	SnapshotHash       string   `json:"snapshot_hash" jsonschema:"Fingerprint of the safety-relevant fields"`
}

type checkInput struct {
	TenantID        string   `json:"tenant_id" jsonschema:"Tenant owning the configuration"`
	UserID          string   `json:"user_id" jsonschema:"User whose active configuration is used"`
	Text            string   `json:"text,omitempty" jsonschema:"Free text to screen"`
	Recommendations []string `json:"recommendations,omitempty" jsonschema:"Recommendations to split into allowed and blocked"`
}

type checkOutput struct {
	Passed           bool                   `json:"passed" jsonschema:"False when any block-severity rule matched"`
	EnforcementLevel string                 `json:"enforcement_level" jsonschema:"strict, moderate or permissive"`
	Violations       []guardrails.Violation `json:"violations" jsonschema:"Every rule the text matched"`
	Allowed          []string               `json:"allowed,omitempty" jsonschema:"Recommendations that passed"`
	Blocked          []string               `json:"blocked,omitempty" jsonschema:"Recommendations that were blocked"`
}

type executeInput struct {
	TenantID    string `json:"tenant_id" jsonschema:"Tenant owning the configuration"`
	UserID      string `json:"user_id" jsonschema:"User whose active configuration is used"`
	ModuleID    string `json:"module_id" jsonschema:"Analysis module to run"`
	WithCouncil bool   `json:"with_council,omitempty" jsonschema:"Fan the output out to the councils and synthesize"`
}

type executeOutput struct {
	Code                  string                 `json:"code,omitempty" jsonschema:"UCR_BLOCKED or GUARDRAIL_VIOLATION when refused"`
	ModuleID              string                 `json:"module_id" jsonschema:"Module that ran"`
	Status                string                 `json:"status,omitempty" jsonschema:"Module status"`
	Confidence            float64                `json:"confidence" jsonschema:"Module confidence 0-1"`
	Insights              []string               `json:"insights,omitempty" jsonschema:"Module insights"`
	PrimaryAction         string                 `json:"primary_action,omitempty" jsonschema:"Synthesized primary action"`
	ContributingCouncils  []string               `json:"contributing_councils,omitempty" jsonschema:"Councils merged into the synthesis"`
	FailedCouncils        []string               `json:"failed_councils,omitempty" jsonschema:"Councils that failed to answer"`
	RequiresHumanOverride bool                   `json:"requires_human_override" jsonschema:"Whether a human must approve the primary action"`
	Violations            []guardrails.Violation `json:"violations,omitempty" jsonschema:"Guardrail violations of the synthesis"`
	SnapshotHash          string                 `json:"snapshot_hash,omitempty" jsonschema:"Fingerprint of the configuration used"`
}

type listCouncilsInput struct{}

type councilSummary struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	DecisionAuthority float64  `json:"decision_authority"`
	IsActive          bool     `json:"is_active"`
	Owns              []string `json:"owns"`
	Supports          []string `json:"supports"`
}

type listCouncilsOutput struct {
	Councils []councilSummary `json:"councils" jsonschema:"Councils in catalog order"`
}

type listModulesInput struct{}

type moduleSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Councils    []string `json:"councils"`
}

type listModulesOutput struct {
	Modules []moduleSummary `json:"modules" jsonschema:"Registered analysis modules"`
}

// toolFunc is a tool body. Refusals are returned as errors.
type toolFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "ucr_validate_context",
		Description: "Validate the caller's active configuration and report whether the gate allows analysis.",
	}, s.validateContext)

	addTool(s, &mcp.Tool{
		Name:        "ucr_check_guardrails",
		Description: "Screen text or recommendations against the configuration's negative scope and strategic avoid list.",
	}, s.checkGuardrails)

	addTool(s, &mcp.Tool{
		Name:        "ucr_execute_module",
		Description: "Run an analysis module through the UCR gate, optionally with council reasoning and guardrail screening of the synthesis.",
	}, s.executeModule)

	addTool(s, &mcp.Tool{
		Name:        "ucr_list_councils",
		Description: "List the reasoning councils and the modules each one owns or supports.",
	}, s.listCouncils)

	addTool(s, &mcp.Tool{
		Name:        "ucr_list_modules",
		Description: "List the analysis modules and the councils that review each one.",
	}, s.listModules)
}

// addTool registers fn with metrics, logging and refusal handling.
func addTool[In, Out any](s *Server, tool *mcp.Tool, fn toolFunc[In, Out]) {
	name := tool.Name
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		s.metrics.IncrementActive(ctx, name)
		defer s.metrics.DecrementActive(ctx, name)

		start := time.Now()
		out, err := fn(ctx, in)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)

		if err != nil {
			var rejection *execution.GateRejection
			var violation *GuardrailViolation
			if errors.As(err, &rejection) || errors.As(err, &violation) {
				s.logger.Info("tool refused", zap.String("tool", name), zap.Error(err))
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				}, out, nil
			}
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
			var zero Out
			return nil, zero, err
		}

		text, err := json.Marshal(out)
		if err != nil {
			var zero Out
			return nil, zero, fmt.Errorf("encoding result: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, out, nil
	})
}

func (s *Server) validateContext(ctx context.Context, in validateInput) (validateOutput, error) {
	ctx, err := logging.WithIdentity(ctx, in.TenantID, in.UserID)
	if err != nil {
		return validateOutput{}, err
	}
	dec, err := s.deps.Gate.ValidateAndGate(ctx, in.TenantID, in.UserID)
	if err != nil {
		return validateOutput{}, fmt.Errorf("loading configuration: %w", err)
	}
	if dec.Snapshot == nil || dec.Snapshot.Configuration == nil {
		return validateOutput{}, fmt.Errorf("%w: no active configuration for %s/%s", store.ErrNotFound, in.TenantID, in.UserID)
	}

	status := dec.Snapshot.Configuration.Governance.Status()
	next := lifecycle.Next(status)
	transitions := make([]string, len(next))
	for i, st := range next {
		transitions[i] = string(st)
	}
	return validateOutput{
		Allowed:            dec.Allowed,
		Reason:             dec.Reason,
		ContextStatus:      string(status),
		AllowedTransitions: transitions,
		OverallScore:       dec.Snapshot.Validation.OverallScore,
		IsCMOSafe:          dec.Snapshot.Validation.IsCMOSafe,
		BlockedReasons:     dec.Snapshot.Validation.BlockedReasons,
		SnapshotHash:       dec.Snapshot.Hash,
	}, nil
}

func (s *Server) checkGuardrails(ctx context.Context, in checkInput) (checkOutput, error) {
	ctx, err := logging.WithIdentity(ctx, in.TenantID, in.UserID)
	if err != nil {
		return checkOutput{}, err
	}
	if in.Text == "" && len(in.Recommendations) == 0 {
		return checkOutput{}, errors.New("text or recommendations is required")
	}
	cfg, err := s.deps.Store.Active(ctx, in.TenantID, in.UserID)
	if err != nil {
		return checkOutput{}, fmt.Errorf("loading configuration: %w", err)
	}

	g := guardrails.FromConfiguration(cfg)
	result := s.deps.Engine.CheckContext(ctx, in.Text, g)
	out := checkOutput{
		Passed:           result.Passed,
		EnforcementLevel: string(result.EnforcementLevel),
		Violations:       result.Violations,
	}
	if out.Violations == nil {
		out.Violations = []guardrails.Violation{}
	}
	if len(in.Recommendations) > 0 {
		filtered := s.deps.Engine.FilterRecommendationsContext(ctx, in.Recommendations, g)
		out.Allowed = filtered.Allowed
		out.Blocked = filtered.Blocked
		out.Violations = append(out.Violations, filtered.Violations...)
		out.Passed = out.Passed && len(filtered.Blocked) == 0
	}
	return out, nil
}

func (s *Server) executeModule(ctx context.Context, in executeInput) (executeOutput, error) {
	ctx, err := logging.WithIdentity(ctx, in.TenantID, in.UserID)
	if err != nil {
		return executeOutput{}, err
	}
	out := executeOutput{ModuleID: in.ModuleID}

	if !in.WithCouncil {
		res, err := s.deps.Executor.Execute(ctx, in.TenantID, in.UserID, in.ModuleID)
		if err != nil {
			return refused(out, err)
		}
		go execution.LogPersistence(s.logger, res.Record, res.Persisted)
		fillOutput(&out, res)
		return out, nil
	}

	res, err := s.deps.Executor.ExecuteWithCouncil(ctx, in.TenantID, in.UserID, in.ModuleID)
	if err != nil {
		return refused(out, err)
	}
	go execution.LogPersistence(s.logger, res.Record, res.Persisted)

	fillOutput(&out, &res.Result)
	out.PrimaryAction = res.Synthesis.UnifiedRecommendation.PrimaryAction
	out.ContributingCouncils = res.Synthesis.ContributingCouncils
	for _, f := range res.Failed {
		out.FailedCouncils = append(out.FailedCouncils, f.CouncilID)
	}
	out.RequiresHumanOverride = res.Guardrails.RequiresHumanOverride
	out.Violations = res.Guardrails.Violations
	if res.Blocked() {
		out.Code = CodeGuardrailViolation
		return out, &GuardrailViolation{Status: res.Guardrails}
	}
	return out, nil
}

func fillOutput(out *executeOutput, res *execution.Result) {
	out.Status = res.Output.Status
	out.Confidence = res.Output.Confidence
	out.Insights = res.Output.Insights
	out.SnapshotHash = res.Snapshot.Hash
}

// refused tags gate rejections with their code and passes other errors on.
func refused(out executeOutput, err error) (executeOutput, error) {
	var rejection *execution.GateRejection
	if errors.As(err, &rejection) {
		out.Code = CodeUCRBlocked
		return out, fmt.Errorf("%s: %w", CodeUCRBlocked, err)
	}
	return out, err
}

func (s *Server) listCouncils(_ context.Context, _ listCouncilsInput) (listCouncilsOutput, error) {
	catalog := s.deps.Councils.Catalog()
	councils := catalog.Councils()
	out := listCouncilsOutput{Councils: make([]councilSummary, 0, len(councils))}
	for _, c := range councils {
		owns, supports := catalog.ModulesOf(c.ID)
		out.Councils = append(out.Councils, councilSummary{
			ID:                c.ID,
			Name:              c.Name,
			Description:       c.Description,
			DecisionAuthority: c.DecisionAuthority,
			IsActive:          c.IsActive,
			Owns:              owns,
			Supports:          supports,
		})
	}
	return out, nil
}

func (s *Server) listModules(_ context.Context, _ listModulesInput) (listModulesOutput, error) {
	infos := s.deps.Executor.Modules().List()
	out := listModulesOutput{Modules: make([]moduleSummary, 0, len(infos))}
	for _, info := range infos {
		councils := s.deps.Councils.Catalog().CouncilsFor(info.ID)
		if councils == nil {
			councils = []string{}
		}
		out.Modules = append(out.Modules, moduleSummary{
			ID:          info.ID,
			Name:        info.Name,
			Description: info.Description,
			Councils:    councils,
		})
	}
	return out, nil
}
