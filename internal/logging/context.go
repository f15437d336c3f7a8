package logging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := IdentityFromContext(ctx); id != nil {
		fields = append(fields,
			zap.String("tenant.id", id.TenantID),
			zap.String("user.id", id.UserID),
		)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type identityCtxKey struct{}
type requestCtxKey struct{}

// Identity is the tenant and user a request acts for.
type Identity struct {
	TenantID string
	UserID   string
}

const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore, dot and @.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)

// ErrInvalidID is wrapped by ValidateID.
var ErrInvalidID = errors.New("invalid id")

// ValidateID checks that id is usable as a tenant, user or request id.
func ValidateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidID, name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: %s contains invalid UTF-8", ErrInvalidID, name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%w: %s exceeds max length %d", ErrInvalidID, name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %s contains invalid characters", ErrInvalidID, name)
	}
	return nil
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityCtxKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// WithIdentity adds the tenant and user to context.
func WithIdentity(ctx context.Context, tenantID, userID string) (context.Context, error) {
	if err := ValidateID(tenantID, "tenant id"); err != nil {
		return ctx, err
	}
	if err := ValidateID(userID, "user id"); err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, identityCtxKey{}, &Identity{TenantID: tenantID, UserID: userID}), nil
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context. Invalid ids are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ValidateID(requestID, "request id") != nil {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
