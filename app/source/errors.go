package source

import "fmt"

type ConfigErrorKind string

const (
	ErrInvalidCadence      ConfigErrorKind = "invalid_cadence"
	ErrUnknownSourceFormat ConfigErrorKind = "unknown_source_format"
	ErrInvalidURL          ConfigErrorKind = "invalid_url"
	ErrMissingSelectors    ConfigErrorKind = "missing_selectors"
	ErrInvalidFilter       ConfigErrorKind = "invalid_filter"
	ErrDuplicateSource     ConfigErrorKind = "duplicate_source"
	ErrUnreadable          ConfigErrorKind = "unreadable"
)

// ConfigError is fatal at startup: the process must not run with a broken registry.
type ConfigError struct {
	Kind   ConfigErrorKind
	Source string
	Detail string
	Cause  error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("source %q: %s", e.Source, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Cause }
