package crawl

import (
	"log/slog"
	"regexp"
)

// ProgressFunc is called after each successful job with the number of jobs
// still waiting in the queue. Jobs in flight are not counted.
// It runs with the crawler's lock held and must not block.
type ProgressFunc func(pending int)

// RetryFunc is called for every failed listing attempt, including the last.
type RetryFunc func(path string, attempt int, err error)

// Options configures the crawl behavior.
type Options struct {
	// Concurrency is the maximum number of listing jobs in flight.
	// Zero is treated as one.
	Concurrency int

	// RetryTimes is the number of extra attempts after a failed listing.
	RetryTimes int

	// Recursive descends into discovered folders. When false only the
	// starting folder is listed.
	Recursive bool

	// RootID selects the drive on indexes that serve several.
	RootID string

	// BaseURL is the index URL download links are resolved against.
	BaseURL string

	// ExcludePatterns are regular expressions matched against resolved
	// paths. Matching entries are neither stored nor descended into.
	ExcludePatterns []*regexp.Regexp

	OnProgress ProgressFunc
	OnRetry    RetryFunc

	// Logger receives dispatch and failure events. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults for crawling.
func DefaultOptions() *Options {
	return &Options{
		Concurrency: 3,
		RetryTimes:  3,
		Recursive:   true,
	}
}

// WithConcurrency sets the number of concurrent listing jobs.
func (o *Options) WithConcurrency(n int) *Options {
	o.Concurrency = n
	return o
}

// WithRetryTimes sets the retry budget per job.
func (o *Options) WithRetryTimes(n int) *Options {
	o.RetryTimes = n
	return o
}

// WithRecursive sets folder descent.
func (o *Options) WithRecursive(recursive bool) *Options {
	o.Recursive = recursive
	return o
}

// WithRootID sets the drive root identifier.
func (o *Options) WithRootID(id string) *Options {
	o.RootID = id
	return o
}

// WithBaseURL sets the base for download URLs.
func (o *Options) WithBaseURL(base string) *Options {
	o.BaseURL = base
	return o
}

// WithProgress sets the progress callback.
func (o *Options) WithProgress(f ProgressFunc) *Options {
	o.OnProgress = f
	return o
}

// WithRetryHook sets the failed-attempt callback.
func (o *Options) WithRetryHook(f RetryFunc) *Options {
	o.OnRetry = f
	return o
}

// WithLogger sets the logger.
func (o *Options) WithLogger(l *slog.Logger) *Options {
	o.Logger = l
	return o
}

// AddExcludePattern adds a pattern to exclude.
func (o *Options) AddExcludePattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return &ConfigError{Field: "exclude", Value: pattern, Reason: err.Error()}
	}
	o.ExcludePatterns = append(o.ExcludePatterns, re)
	return nil
}

// ShouldExclude checks if a path matches any exclude pattern.
func (o *Options) ShouldExclude(path string) bool {
	for _, re := range o.ExcludePatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Validate rejects option values that cannot describe a crawl.
func (o *Options) Validate() error {
	if o.Concurrency < 0 {
		return &ConfigError{Field: "concurrency", Value: o.Concurrency, Reason: "must not be negative"}
	}
	if o.RetryTimes < 0 {
		return &ConfigError{Field: "retry_times", Value: o.RetryTimes, Reason: "must not be negative"}
	}
	return nil
}

func (o *Options) limit() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}
