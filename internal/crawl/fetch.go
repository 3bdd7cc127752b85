package crawl

import (
	"context"

	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/listing"
)

// fetchWithRetry lists path, retrying immediately on failure until the
// budget is spent: at most budget+1 attempts in total. onFail sees every
// failed attempt. A cancelled context stops further attempts and its error
// is returned as is.
func fetchWithRetry(ctx context.Context, l listing.Lister, path, rootID string, budget int, onFail func(attempt int, err error)) ([]entry.RawRecord, error) {
	if budget < 0 {
		budget = 0
	}

	var lastErr error
	for attempt := 1; attempt <= budget+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := l.List(ctx, path, rootID)
		if err == nil {
			return records, nil
		}

		lastErr = &ListingError{Path: path, Attempt: attempt, Err: err}
		if onFail != nil {
			onFail(attempt, err)
		}
	}

	return nil, &ExhaustedRetriesError{Path: path, Attempts: budget + 1, Err: lastErr}
}
