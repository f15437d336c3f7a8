package http

import (
	"github.com/go-playground/validator/v10"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/modules"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
	"github.com/pisanocami/usercontextrecord-sub002/internal/validation"
)

// GuardrailViolationCode is the error code of a 409 guardrail response.
const GuardrailViolationCode = "GUARDRAIL_VIOLATION"

// TransitionBlockedCode is the error code of a 409 lifecycle response.
const TransitionBlockedCode = "TRANSITION_BLOCKED"

// MaxTextBytes bounds text screened by POST /api/v1/guardrails/check.
const MaxTextBytes = 64 * 1024

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CouncilDetail is the response body for GET /api/v1/councils/:id.
type CouncilDetail struct {
	council.Council
	Owns     []string `json:"owns"`
	Supports []string `json:"supports"`
}

// ReasonRequest is the request body for POST /api/v1/councils/:id/reason.
type ReasonRequest struct {
	ModuleData   any    `json:"moduleData" validate:"required"`
	BrandContext string `json:"brandContext"`
}

// SynthesizeRequest is the request body for POST /api/v1/councils/synthesize.
type SynthesizeRequest struct {
	Perspectives map[string]council.Perspective `json:"perspectives" validate:"required,min=1"`
}

// ExecuteResponse is the response body for POST /api/v1/modules/:id/execute.
type ExecuteResponse struct {
	Result      modules.Output `json:"result"`
	UCRSnapshot snapshot.Ref   `json:"ucrSnapshot"`
}

// CouncilExecuteResponse is the 200 body for
// POST /api/v1/modules/:id/execute-with-council.
type CouncilExecuteResponse struct {
	Result              modules.Output                 `json:"result"`
	CouncilPerspectives map[string]council.Perspective `json:"councilPerspectives"`
	FailedCouncils      []council.FailedCouncil        `json:"failedCouncils,omitempty"`
	Synthesis           council.Synthesis              `json:"synthesis"`
	GuardrailStatus     council.GuardrailStatus        `json:"guardrailStatus"`
	UCRSnapshot         snapshot.Ref                   `json:"ucrSnapshot"`
}

// GuardrailViolationResponse is the 409 body returned when the synthesized
// primary action is blocked under strict enforcement.
type GuardrailViolationResponse struct {
	Error                 string                 `json:"error"`
	Message               string                 `json:"message"`
	Result                modules.Output         `json:"result"`
	Synthesis             council.Synthesis      `json:"synthesis"`
	Violations            []guardrails.Violation `json:"violations"`
	RequiresHumanOverride bool                   `json:"requiresHumanOverride"`
	UCRSnapshot           snapshot.Ref           `json:"ucrSnapshot"`
}

// ValidationResponse is the response body for GET /api/v1/context/validation.
type ValidationResponse struct {
	Allowed            bool                            `json:"allowed"`
	Reason             string                          `json:"reason,omitempty"`
	ContextStatus      ucr.ContextStatus               `json:"contextStatus"`
	AllowedTransitions []ucr.ContextStatus             `json:"allowedTransitions"`
	Validation         validation.FullValidationResult `json:"validation"`
	UCRSnapshot        snapshot.Ref                    `json:"ucrSnapshot"`
}

// TransitionRequest is the request body for POST /api/v1/context/transition.
type TransitionRequest struct {
	To ucr.ContextStatus `json:"to" validate:"required,oneof=DRAFT_AI AI_READY AI_ANALYSIS_RUN HUMAN_CONFIRMED LOCKED"`
}

// TransitionResponse is the response body for a successful transition.
type TransitionResponse struct {
	From       ucr.ContextStatus `json:"from"`
	To         ucr.ContextStatus `json:"to"`
	Rollback   bool              `json:"rollback"`
	Governance ucr.Governance    `json:"governance"`
}

// TransitionBlockedResponse is the 409 body for a refused transition.
type TransitionBlockedResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	From    ucr.ContextStatus `json:"from"`
	To      ucr.ContextStatus `json:"to"`
}

// CheckRequest is the request body for POST /api/v1/guardrails/check.
type CheckRequest struct {
	Text            string   `json:"text" validate:"required_without=Recommendations,maxbytes"`
	Recommendations []string `json:"recommendations" validate:"omitempty,dive,maxbytes"`
}

// CheckResponse is the response body for POST /api/v1/guardrails/check.
type CheckResponse struct {
	guardrails.CheckResult
	Filter *guardrails.FilterResult `json:"filter,omitempty"`
}

// requestValidate validates decoded request bodies.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxTextBytes
}

// echoValidator adapts requestValidate to echo.Validator.
type echoValidator struct{}

func (echoValidator) Validate(i any) error {
	return requestValidate.Struct(i)
}
