package rollup

import (
	"context"
	"database/sql"
	"fmt"
)

// Both parent lookups run once per folder; the names match the snapshot
// indexes so a later index build skips them.
var parentIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_dirs_parent ON dirs(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_id)`,
}

// levelSQL fills the rollups of every folder at one depth from its own files
// and the already computed rollups of its subfolders.
const levelSQL = `
INSERT OR REPLACE INTO rollups (dir_id, total_size, total_files, total_dirs)
SELECT d.id,
       COALESCE((SELECT SUM(e.size) FROM entries e WHERE e.parent_id = d.id AND e.has_size = 1), 0)
         + COALESCE(sub.size, 0),
       (SELECT COUNT(*) FROM entries e WHERE e.parent_id = d.id)
         + COALESCE(sub.files, 0),
       COALESCE(sub.dirs, 0)
FROM dirs d
LEFT JOIN (
    SELECT c.parent_id AS parent_id,
           SUM(COALESCE(r.total_size, 0)) AS size,
           SUM(COALESCE(r.total_files, 0)) AS files,
           COUNT(*) + SUM(COALESCE(r.total_dirs, 0)) AS dirs
    FROM dirs c
    LEFT JOIN rollups r ON r.dir_id = c.id
    WHERE c.depth = ? + 1
    GROUP BY c.parent_id
) sub ON sub.parent_id = d.id
WHERE d.depth = ?
`

// Builder computes folder rollups bottom-up over a snapshot database.
type Builder struct {
	db       *sql.DB
	progress ProgressFunc
}

// ProgressFunc reports rollup progress after each depth level.
type ProgressFunc func(done, total int64, depth, maxDepth int)

// NewBuilder creates a new rollup builder.
func NewBuilder(db *sql.DB) *Builder {
	return &Builder{db: db}
}

// SetProgressFunc sets a callback for rollup progress updates.
func (b *Builder) SetProgressFunc(f ProgressFunc) {
	b.progress = f
}

// Build computes rollups for all folders, one depth level at a time from the
// deepest up, inside a single transaction. Cancellation is checked between
// levels.
func (b *Builder) Build(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var maxDepth int
	var total int64
	err := b.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(depth), 0), COUNT(*) FROM dirs`).Scan(&maxDepth, &total)
	if err != nil {
		return fmt.Errorf("failed to size folder tree: %w", err)
	}

	for _, ddl := range parentIndexes {
		if _, err := b.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to index parents: %w", err)
		}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	level, err := tx.PrepareContext(ctx, levelSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare rollup statement: %w", err)
	}
	defer level.Close()

	var done int64
	for depth := maxDepth; depth >= 0; depth-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := level.ExecContext(ctx, depth, depth)
		if err != nil {
			return fmt.Errorf("failed to roll up depth %d: %w", depth, err)
		}
		n, _ := res.RowsAffected()
		done += n
		if b.progress != nil {
			b.progress(done, total, depth, maxDepth)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollups: %w", err)
	}
	return nil
}
