// Package store provides the ConfigurationStore collaborators that load a
// tenant's active configuration and persist governance updates.
package store

import (
	"context"
	"errors"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// ErrNotFound is returned when no active configuration exists for an identity.
var ErrNotFound = errors.New("configuration not found")

// ConfigurationStore loads and updates configurations keyed by tenant and user.
type ConfigurationStore interface {
	// Active returns a copy of the active configuration, or ErrNotFound.
	Active(ctx context.Context, tenantID, userID string) (*ucr.Configuration, error)

	// SaveGovernance replaces the governance section of the active
	// configuration. Other sections are left untouched.
	SaveGovernance(ctx context.Context, tenantID, userID string, gov ucr.Governance) error
}

// key identifies an active configuration.
type key struct {
	tenant string
	user   string
}
