package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelscutari/dredge/internal/listing"
)

func TestFetchWithRetryRecovers(t *testing.T) {
	l := listing.NewMemoryLister()
	l.AddFile("/", "f", 1)
	l.FailNext("/", 2)

	var attempts []int
	records, err := fetchWithRetry(context.Background(), l, "/", "", 3, func(attempt int, err error) {
		attempts = append(attempts, attempt)
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "f", records[0].Name)
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, 3, l.Calls("/"))
}

func TestFetchWithRetryExhausted(t *testing.T) {
	l := listing.NewMemoryLister()
	l.FailNext("/", 10)

	_, err := fetchWithRetry(context.Background(), l, "/", "", 2, nil)
	require.Error(t, err)

	var exhausted *ExhaustedRetriesError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "/", exhausted.Path)
	assert.Equal(t, 3, exhausted.Attempts)

	var last *ListingError
	require.True(t, errors.As(err, &last))
	assert.Equal(t, 3, last.Attempt)
	assert.Equal(t, 3, l.Calls("/"))
}

func TestExhaustedRetriesErrorNamesPathOnce(t *testing.T) {
	cause := errors.New("connection reset")
	err := &ExhaustedRetriesError{
		Path:     "/B/",
		Attempts: 2,
		Err:      &ListingError{Path: "/B/", Attempt: 2, Err: cause},
	}

	assert.Equal(t, "crawl: listing /B/ failed after 2 attempts: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestFetchWithRetryZeroBudget(t *testing.T) {
	l := listing.NewMemoryLister()
	l.FailNext("/", 1)

	_, err := fetchWithRetry(context.Background(), l, "/", "", 0, nil)
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.Equal(t, 1, l.Calls("/"))
}

func TestFetchWithRetryStopsOnCancel(t *testing.T) {
	l := listing.NewMemoryLister()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetchWithRetry(ctx, l, "/", "", 3, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, l.Calls("/"))
}
