package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
	"github.com/pisanocami/usercontextrecord-sub002/internal/validation"
)

// Rejection reasons surfaced when a gate refuses execution.
const (
	ReasonNoConfiguration = "no active configuration found"
	ReasonExpired         = "configuration expired"
)

// Loader loads the caller's active configuration.
type Loader interface {
	Active(ctx context.Context, tenantID, userID string) (*ucr.Configuration, error)
}

// Decision is the outcome of a gate check. A refused Decision still carries
// the full validation so the caller can see every blocked section.
type Decision struct {
	Allowed    bool                             `json:"allowed"`
	Reason     string                           `json:"reason,omitempty"`
	Snapshot   *UCRSnapshot                     `json:"snapshot,omitempty"`
	Validation *validation.FullValidationResult `json:"validation,omitempty"`
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock sets the time source used for validation and expiry.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

// WithLogger sets the gate logger.
func WithLogger(logger *zap.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// Gate decides whether module execution may run against a caller's
// configuration.
type Gate struct {
	loader Loader
	now    func() time.Time
	logger *zap.Logger
}

// NewGate creates a Gate reading configurations from loader.
func NewGate(loader Loader, opts ...GateOption) *Gate {
	g := &Gate{
		loader: loader,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateAndGate loads, validates and snapshots the active configuration for
// tenantID and userID.
//
// Execution is refused when no configuration exists, when it fails
// validation, or when governance.context_valid_until lies in the past. A
// refusal is a Decision, not an error; the error return is reserved for
// loader failures other than store.ErrNotFound.
func (g *Gate) ValidateAndGate(ctx context.Context, tenantID, userID string) (*Decision, error) {
	cfg, err := g.loader.Active(ctx, tenantID, userID)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Info("gate refused execution",
			zap.String("tenant_id", tenantID),
			zap.String("user_id", userID),
			zap.String("reason", ReasonNoConfiguration))
		result := validation.ValidateConfiguration(nil, g.now())
		return &Decision{Reason: ReasonNoConfiguration, Validation: &result}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	now := g.now()
	result := validation.ValidateConfiguration(cfg, now)
	snap := CreateSnapshot(cfg, result, now)
	d := &Decision{Snapshot: snap, Validation: &snap.Validation}

	switch {
	case !result.IsValid:
		d.Reason = "configuration is invalid: " + strings.Join(result.BlockedReasons, "; ")
	case cfg.Governance.Expired(now):
		d.Reason = fmt.Sprintf("%s at %s", ReasonExpired, cfg.Governance.ContextValidUntil.UTC().Format(time.RFC3339))
	default:
		d.Allowed = true
	}

	fields := []zap.Field{
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("snapshot_hash", snap.Hash),
		zap.Int("overall_score", result.OverallScore),
	}
	if d.Allowed {
		g.logger.Debug("gate allowed execution", fields...)
	} else {
		g.logger.Info("gate refused execution", append(fields, zap.String("reason", d.Reason))...)
	}
	return d, nil
}
