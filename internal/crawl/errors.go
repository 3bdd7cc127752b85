package crawl

import (
	"errors"
	"fmt"
)

// ErrCrawlerUsed is returned when Crawl is called twice on one Crawler.
var ErrCrawlerUsed = errors.New("crawl: crawler already used")

// ConfigError reports an invalid option. It is returned before any listing
// call is made.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("crawl: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// ListingError is a single failed listing attempt.
type ListingError struct {
	Path    string
	Attempt int
	Err     error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("list %s (attempt %d): %v", e.Path, e.Attempt, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

// ExhaustedRetriesError is returned when a path keeps failing after the whole
// retry budget. It aborts the crawl.
type ExhaustedRetriesError struct {
	Path     string
	Attempts int
	Err      error // the last ListingError
}

// Error names the path and attempt count once and ends with the cause of
// the last attempt.
func (e *ExhaustedRetriesError) Error() string {
	cause := e.Err
	var last *ListingError
	if errors.As(cause, &last) {
		cause = last.Err
	}
	return fmt.Sprintf("crawl: listing %s failed after %d attempts: %v", e.Path, e.Attempts, cause)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Err
}
