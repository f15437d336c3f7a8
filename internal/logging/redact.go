package logging

import (
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/pisanocami/usercontextrecord-sub002/internal/config"
)

// Secret creates a field that records only the length of a config.Secret.
func Secret(key string, val config.Secret) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val.Value()))+"]")
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields.
type RedactingEncoder struct {
	zapcore.Encoder
	redactFields map[string]bool
}

// NewRedactingEncoder wraps base with the redaction rules in cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) *RedactingEncoder {
	fields := make(map[string]bool, len(cfg.Fields))
	if cfg.Enabled {
		for _, f := range cfg.Fields {
			fields[strings.ToLower(f)] = true
		}
	}
	return &RedactingEncoder{Encoder: base, redactFields: fields}
}

func (e *RedactingEncoder) redacts(key string) bool {
	return e.redactFields[strings.ToLower(key)]
}

// AddString redacts sensitive field names.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.redacts(key) {
		val = "[REDACTED]"
	}
	e.Encoder.AddString(key, val)
}

// AddReflected redacts sensitive field names.
func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.redacts(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), redactFields: e.redactFields}
}

// EncodeEntry redacts sensitive fields passed with the entry. The embedded
// encoder encodes entry fields itself, bypassing the Add* overrides above.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	var redacted []zapcore.Field
	for i, f := range fields {
		if !e.redacts(f.Key) {
			continue
		}
		if redacted == nil {
			redacted = slices.Clone(fields)
		}
		redacted[i] = zap.String(f.Key, "[REDACTED]")
	}
	if redacted == nil {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	return e.Encoder.EncodeEntry(ent, redacted)
}
