package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration read from text such as "45s" or "2m".
type Duration time.Duration

// UnmarshalText parses a Go duration string. Negative values are rejected.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders d in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// redactedMark replaces a set Secret wherever it would be printed.
const redactedMark = "[REDACTED]"

// Secret holds a credential such as the reasoning API key. Every printed or
// encoded form is redacted; only Value exposes it.
type Secret string

func (s Secret) redacted() string {
	if s == "" {
		return ""
	}
	return redactedMark
}

// Value returns the credential.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string { return s.redacted() }

// GoString keeps %#v from printing the underlying string.
func (s Secret) GoString() string { return "Secret(" + redactedMark + ")" }

// MarshalText covers JSON, YAML and log encoders that honor TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.redacted()), nil }

// UnmarshalText accepts the raw credential from files and the environment.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
