package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/execution"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/lifecycle"
	"github.com/pisanocami/usercontextrecord-sub002/internal/logging"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/validation"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListCouncils(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Councils.Catalog().Councils())
}

func (s *Server) handleGetCouncil(c echo.Context) error {
	catalog := s.deps.Councils.Catalog()
	id := c.Param("id")
	cl, ok := catalog.Council(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("council %q not found", id))
	}
	owns, supports := catalog.ModulesOf(id)
	return c.JSON(http.StatusOK, CouncilDetail{Council: cl, Owns: owns, Supports: supports})
}

func (s *Server) handleReason(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.deps.Councils.Catalog().Council(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("council %q not found", id))
	}

	var req ReasonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	p, err := s.deps.Councils.Reason(c.Request().Context(), id, req.ModuleData, req.BrandContext)
	switch {
	case errors.Is(err, council.ErrCouncilNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, council.ErrCouncilInactive):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "council reasoning failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleSynthesize(c echo.Context) error {
	var req SynthesizeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ordered := s.deps.Councils.OrderPerspectives(req.Perspectives)
	return c.JSON(http.StatusOK, s.deps.Councils.Synthesize(c.Request().Context(), ordered))
}

func (s *Server) handleListModules(c echo.Context) error {
	catalog := s.deps.Councils.Catalog()
	infos := s.deps.Executor.Modules().List()
	for i := range infos {
		infos[i].Councils = catalog.CouncilsFor(infos[i].ID)
	}
	return c.JSON(http.StatusOK, infos)
}

func (s *Server) handleExecute(c echo.Context) error {
	res, err := s.deps.Executor.Run(c.Request().Context(), snapshot.DecisionFrom(c), c.Param("id"))
	if err != nil {
		return executionError(err)
	}
	s.logPersistence(c, res.Record, res.Persisted)

	return c.JSON(http.StatusOK, ExecuteResponse{
		Result:      res.Output,
		UCRSnapshot: res.Snapshot,
	})
}

func (s *Server) handleExecuteWithCouncil(c echo.Context) error {
	res, err := s.deps.Executor.RunWithCouncil(c.Request().Context(), snapshot.DecisionFrom(c), c.Param("id"))
	if err != nil {
		return executionError(err)
	}
	s.logPersistence(c, res.Record, res.Persisted)

	if res.Blocked() {
		return c.JSON(http.StatusConflict, GuardrailViolationResponse{
			Error:                 GuardrailViolationCode,
			Message:               res.Guardrails.Message(),
			Result:                res.Output,
			Synthesis:             res.Synthesis,
			Violations:            res.Guardrails.Violations,
			RequiresHumanOverride: true,
			UCRSnapshot:           res.Snapshot,
		})
	}

	perspectives := make(map[string]council.Perspective, len(res.Perspectives))
	for _, p := range res.Perspectives {
		perspectives[p.CouncilID] = p
	}
	return c.JSON(http.StatusOK, CouncilExecuteResponse{
		Result:              res.Output,
		CouncilPerspectives: perspectives,
		FailedCouncils:      res.Failed,
		Synthesis:           res.Synthesis,
		GuardrailStatus:     res.Guardrails,
		UCRSnapshot:         res.Snapshot,
	})
}

// logPersistence logs the record publish outcome once it settles, without
// holding the response.
func (s *Server) logPersistence(c echo.Context, rec execution.ExecutionRecord, persisted <-chan error) {
	logger := s.logger.With(logging.ContextFields(c.Request().Context())...)
	go execution.LogPersistence(logger, rec, persisted)
}

func executionError(err error) error {
	var rejection *execution.GateRejection
	switch {
	case errors.Is(err, execution.ErrModuleNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &rejection):
		return echo.NewHTTPError(http.StatusForbidden, rejection.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "module execution failed").SetInternal(err)
	}
}

func (s *Server) handleContextValidation(c echo.Context) error {
	tenantID, userID, err := identityOf(c)
	if err != nil {
		return err
	}
	dec, err := s.deps.Gate.ValidateAndGate(c.Request().Context(), tenantID, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load configuration").SetInternal(err)
	}
	if dec.Snapshot == nil || dec.Snapshot.Configuration == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active configuration")
	}

	status := dec.Snapshot.Configuration.Governance.Status()
	return c.JSON(http.StatusOK, ValidationResponse{
		Allowed:            dec.Allowed,
		Reason:             dec.Reason,
		ContextStatus:      status,
		AllowedTransitions: lifecycle.Next(status),
		Validation:         dec.Snapshot.Validation,
		UCRSnapshot:        dec.Snapshot.Ref(),
	})
}

func (s *Server) handleTransition(c echo.Context) error {
	tenantID, userID, err := identityOf(c)
	if err != nil {
		return err
	}
	var req TransitionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	cfg, err := s.deps.Store.Active(ctx, tenantID, userID)
	if err != nil {
		return notFoundOr500(err, "failed to load configuration")
	}

	now := s.deps.Clock()
	result := validation.ValidateConfiguration(cfg, now)
	from := cfg.Governance.Status()
	next, err := lifecycle.Apply(cfg, req.To, &result, now)
	if errors.Is(err, lifecycle.ErrTransitionBlocked) {
		return c.JSON(http.StatusConflict, TransitionBlockedResponse{
			Error:   TransitionBlockedCode,
			Message: err.Error(),
			From:    from,
			To:      req.To,
		})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "transition failed").SetInternal(err)
	}

	if err := s.deps.Store.SaveGovernance(ctx, tenantID, userID, next); err != nil {
		return notFoundOr500(err, "failed to save governance")
	}
	s.logger.Info("context status changed",
		append(logging.ContextFields(ctx),
			zap.String("from", string(from)),
			zap.String("to", string(req.To)),
			zap.Int("context_version", next.ContextVersion),
		)...)

	return c.JSON(http.StatusOK, TransitionResponse{
		From:       from,
		To:         req.To,
		Rollback:   lifecycle.IsRollback(from, req.To),
		Governance: next,
	})
}

func (s *Server) handleGuardrailsCheck(c echo.Context) error {
	tenantID, userID, err := identityOf(c)
	if err != nil {
		return err
	}
	var req CheckRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	cfg, err := s.deps.Store.Active(ctx, tenantID, userID)
	if err != nil {
		return notFoundOr500(err, "failed to load configuration")
	}

	g := guardrails.FromConfiguration(cfg)
	resp := CheckResponse{CheckResult: s.deps.Engine.CheckContext(ctx, req.Text, g)}
	if len(req.Recommendations) > 0 {
		filtered := s.deps.Engine.FilterRecommendationsContext(ctx, req.Recommendations, g)
		resp.Filter = &filtered
	}
	return c.JSON(http.StatusOK, resp)
}
