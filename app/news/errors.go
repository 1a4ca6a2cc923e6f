package news

import "fmt"

type ParseErrorKind string

const (
	ErrKindMalformed         ParseErrorKind = "malformed"
	ErrKindUnsupportedFormat ParseErrorKind = "unsupported_format"
	ErrKindEmpty             ParseErrorKind = "empty"
)

// ParseError is never retriable against the same payload; only a re-fetch can help.
type ParseError struct {
	Kind     ParseErrorKind
	SourceID string
	Format   string
	Cause    error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse %s (source %s, format %s): %v", e.Kind, e.SourceID, e.Format, e.Cause)
	}
	return fmt.Sprintf("parse %s (source %s, format %s)", e.Kind, e.SourceID, e.Format)
}

func (e *ParseError) Unwrap() error { return e.Cause }
