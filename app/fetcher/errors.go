package fetcher

import (
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindConnection ErrorKind = "connection"
	ErrKindHTTPStatus ErrorKind = "http_status"

	// The document is larger than MaxBodySize. Never retried.
	ErrKindBodyTooLarge ErrorKind = "body_too_large"
)

// FetchError is a classified failure of one fetch. Retriable tells the retry
// loop whether another attempt inside the same dispatch can help.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Retriable  bool
	URL        string
	Attempts   int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Kind == ErrKindHTTPStatus {
		return fmt.Sprintf("fetch %s: HTTP %d for %s", e.Kind, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("fetch %s: %v for %s", e.Kind, e.Cause, e.URL)
}

func (e *FetchError) Unwrap() error { return e.Cause }

func classifyStatus(statusCode int, url string) *FetchError {
	retriable := false
	switch {
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooEarly,
		statusCode == http.StatusTooManyRequests,
		statusCode >= http.StatusInternalServerError:
		retriable = true
	}

	return &FetchError{
		Kind:       ErrKindHTTPStatus,
		StatusCode: statusCode,
		Retriable:  retriable,
		URL:        url,
		Cause:      fmt.Errorf("HTTP %d %s", statusCode, http.StatusText(statusCode)),
	}
}
