package snapshot

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// BlockedCode is the error code of a 403 gate refusal.
const BlockedCode = "UCR_BLOCKED"

const decisionKey = "ucr.decision"

// BlockedResponse is the body returned when the gate refuses execution.
type BlockedResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Validation any    `json:"validation"`
}

// IdentityFunc extracts the tenant and user a request acts for.
type IdentityFunc func(c echo.Context) (tenantID, userID string, err error)

// RequireUCR runs the gate in front of a handler. Refusals are answered with
// 403 and the full validation; allowed requests find the Decision through
// DecisionFrom.
func RequireUCR(gate *Gate, identity IdentityFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID, userID, err := identity(c)
			if err != nil {
				return err
			}

			d, err := gate.ValidateAndGate(c.Request().Context(), tenantID, userID)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to load configuration").SetInternal(err)
			}
			if !d.Allowed {
				return c.JSON(http.StatusForbidden, BlockedResponse{
					Error:      BlockedCode,
					Message:    d.Reason,
					Validation: d.Validation,
				})
			}

			c.Set(decisionKey, d)
			return next(c)
		}
	}
}

// DecisionFrom returns the Decision stored by RequireUCR, or nil.
func DecisionFrom(c echo.Context) *Decision {
	d, _ := c.Get(decisionKey).(*Decision)
	return d
}
