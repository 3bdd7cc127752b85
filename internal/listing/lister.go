package listing

import (
	"context"

	"github.com/michaelscutari/dredge/internal/entry"
)

// Lister lists the direct children of a remote path.
type Lister interface {
	List(ctx context.Context, path, rootID string) ([]entry.RawRecord, error)
}

// Func adapts a plain function to the Lister interface.
type Func func(ctx context.Context, path, rootID string) ([]entry.RawRecord, error)

// List calls f.
func (f Func) List(ctx context.Context, path, rootID string) ([]entry.RawRecord, error) {
	return f(ctx, path, rootID)
}
