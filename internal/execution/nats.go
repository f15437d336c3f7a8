package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when NATSSink is created without a prefix.
const DefaultSubjectPrefix = "ucr.executions"

const defaultFlushTimeout = 5 * time.Second

// NATSSink publishes records as JSON to <prefix>.<tenant>.<context_id>.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSink creates a NATSSink on an established connection.
func NewNATSSink(nc *nats.Conn, prefix string) (*NATSSink, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if prefix = strings.Trim(prefix, "."); prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject rec is published on.
func (s *NATSSink) Subject(rec ExecutionRecord) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, subjectToken(rec.TenantID), subjectToken(rec.ContextID))
}

// Publish implements RecordSink. It flushes so delivery errors surface to the
// caller instead of being lost in the client buffer.
func (s *NATSSink) Publish(ctx context.Context, rec ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	subject := s.Subject(rec)
	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish execution record: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		err = s.nc.FlushTimeout(defaultFlushTimeout)
	} else {
		err = s.nc.FlushWithContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("flush execution record: %w", err)
	}
	return nil
}

// subjectToken makes v safe as a single NATS subject token.
func subjectToken(v string) string {
	if v == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, v)
}
