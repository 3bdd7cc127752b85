package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/logging"
)

const insertDirSQL = `INSERT OR REPLACE INTO dirs (id, path, name, parent_id, depth, listed) VALUES (?, ?, ?, ?, ?, ?)`
const insertEntrySQL = `INSERT INTO entries (parent_id, name, kind, mime_type, size, has_size, human_size, path, download_url) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
const insertErrorSQL = `INSERT INTO crawl_errors (path, attempt, message) VALUES (?, ?, ?)`

const maxErrorsSampled = 1000

// Ingester batches folders, files and recovered crawl errors and writes them
// to the database.
type Ingester struct {
	db              *sql.DB
	fileCh          <-chan entry.File
	dirCh           <-chan entry.Dir
	errorCh         <-chan entry.CrawlError
	batchSize       int
	flushIntervalMs int
	maxErrors       int
	cancelFunc      context.CancelFunc
	log             *slog.Logger

	fileBatch  []entry.File
	dirBatch   []entry.Dir
	errorBatch []entry.CrawlError
	errorCount int64

	// Progress tracking (atomic)
	fileCount  int64
	dirCount   int64
	totalBytes int64

	dirStmt   *sql.Stmt
	fileStmt  *sql.Stmt
	errorStmt *sql.Stmt
}

// Progress holds current ingestion progress.
type Progress struct {
	Files      int64
	Dirs       int64
	Errors     int64
	TotalBytes int64
}

// NewIngester creates a new ingester. When maxErrors is positive, cancelFunc
// is called once that many crawl errors have been received. A nil logger
// discards debug output.
func NewIngester(db *sql.DB, fileCh <-chan entry.File, dirCh <-chan entry.Dir, errorCh <-chan entry.CrawlError, batchSize, flushIntervalMs, maxErrors int, logger *slog.Logger, cancelFunc context.CancelFunc) *Ingester {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 500
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Ingester{
		db:              db,
		fileCh:          fileCh,
		dirCh:           dirCh,
		errorCh:         errorCh,
		batchSize:       batchSize,
		flushIntervalMs: flushIntervalMs,
		maxErrors:       maxErrors,
		cancelFunc:      cancelFunc,
		log:             logger.With("component", "ingester"),
		fileBatch:       make([]entry.File, 0, batchSize),
		dirBatch:        make([]entry.Dir, 0, batchSize),
		errorBatch:      make([]entry.CrawlError, 0, 100),
	}
}

// Run consumes the input channels and batches them to the database.
// It returns when every channel is closed or ctx is done.
func (ing *Ingester) Run(ctx context.Context) error {
	var err error
	ing.dirStmt, err = ing.db.Prepare(insertDirSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare dir statement: %w", err)
	}
	defer ing.dirStmt.Close()

	ing.fileStmt, err = ing.db.Prepare(insertEntrySQL)
	if err != nil {
		return fmt.Errorf("failed to prepare entry statement: %w", err)
	}
	defer ing.fileStmt.Close()

	ing.errorStmt, err = ing.db.Prepare(insertErrorSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare error statement: %w", err)
	}
	defer ing.errorStmt.Close()

	ticker := time.NewTicker(time.Duration(ing.flushIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	ing.log.Debug("started", "batchSize", ing.batchSize, "flushIntervalMs", ing.flushIntervalMs)

	fileCh := ing.fileCh
	dirCh := ing.dirCh
	errorCh := ing.errorCh

	for fileCh != nil || dirCh != nil || errorCh != nil {
		select {
		case <-ctx.Done():
			ing.log.Debug("context cancelled", "pendingFiles", len(ing.fileBatch))
			return ing.flush()

		case f, ok := <-fileCh:
			if !ok {
				fileCh = nil
				continue
			}
			atomic.AddInt64(&ing.fileCount, 1)
			if f.HasSize {
				atomic.AddInt64(&ing.totalBytes, f.RawSizeBytes)
			}
			ing.fileBatch = append(ing.fileBatch, f)
			if len(ing.fileBatch) >= ing.batchSize {
				if err := ing.flush(); err != nil {
					return err
				}
			}

		case d, ok := <-dirCh:
			if !ok {
				dirCh = nil
				continue
			}
			atomic.AddInt64(&ing.dirCount, 1)
			ing.dirBatch = append(ing.dirBatch, d)
			if len(ing.dirBatch) >= ing.batchSize {
				if err := ing.flush(); err != nil {
					return err
				}
			}

		case e, ok := <-errorCh:
			if !ok {
				errorCh = nil
				continue
			}
			n := atomic.AddInt64(&ing.errorCount, 1)
			if ing.maxErrors > 0 && n >= int64(ing.maxErrors) && ing.cancelFunc != nil {
				ing.cancelFunc()
			}
			// Only the first errors are stored; the total lives in crawl_meta.
			if n <= maxErrorsSampled {
				ing.errorBatch = append(ing.errorBatch, e)
			}

		case <-ticker.C:
			if err := ing.flush(); err != nil {
				return err
			}
		}
	}

	ing.log.Debug("inputs closed", "files", atomic.LoadInt64(&ing.fileCount), "dirs", atomic.LoadInt64(&ing.dirCount))
	return ing.flush()
}

// flush writes every pending batch in one transaction.
func (ing *Ingester) flush() error {
	n := len(ing.dirBatch) + len(ing.fileBatch) + len(ing.errorBatch)
	if n == 0 {
		return nil
	}
	start := time.Now()

	tx, err := ing.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = insertAll(tx, ing.dirStmt, ing.dirBatch, func(d entry.Dir) ([]any, string) {
		var parent any
		if d.ParentID != 0 {
			parent = d.ParentID
		}
		return []any{d.ID, d.Path, d.Name, parent, d.Depth, d.Listed}, d.Path
	})
	if err == nil {
		err = insertAll(tx, ing.fileStmt, ing.fileBatch, func(f entry.File) ([]any, string) {
			return []any{f.ParentID, f.Name, f.Kind(), f.MimeType, f.RawSizeBytes, f.HasSize, f.HumanSize, f.ResolvedPath, f.DownloadURL}, f.ResolvedPath
		})
	}
	if err == nil {
		err = insertAll(tx, ing.errorStmt, ing.errorBatch, func(e entry.CrawlError) ([]any, string) {
			return []any{e.Path, e.Attempt, e.Message}, e.Path
		})
	}
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	ing.log.Debug("flushed", "dirs", len(ing.dirBatch), "files", len(ing.fileBatch), "errors", len(ing.errorBatch), "took", time.Since(start))
	ing.dirBatch = ing.dirBatch[:0]
	ing.fileBatch = ing.fileBatch[:0]
	ing.errorBatch = ing.errorBatch[:0]
	return nil
}

// insertAll runs stmt inside tx once per row. row returns the statement
// arguments and a label for error messages.
func insertAll[T any](tx *sql.Tx, stmt *sql.Stmt, rows []T, row func(T) ([]any, string)) error {
	if len(rows) == 0 {
		return nil
	}
	txStmt := tx.Stmt(stmt)
	defer txStmt.Close()
	for _, r := range rows {
		args, label := row(r)
		if _, err := txStmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert %q: %w", label, err)
		}
	}
	return nil
}

// ErrorCount returns the total number of crawl errors received.
func (ing *Ingester) ErrorCount() int64 {
	return atomic.LoadInt64(&ing.errorCount)
}

// Progress returns current progress (safe for concurrent access).
func (ing *Ingester) Progress() Progress {
	return Progress{
		Files:      atomic.LoadInt64(&ing.fileCount),
		Dirs:       atomic.LoadInt64(&ing.dirCount),
		Errors:     atomic.LoadInt64(&ing.errorCount),
		TotalBytes: atomic.LoadInt64(&ing.totalBytes),
	}
}
