package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/michaelscutari/dredge/internal/crawl"
	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/listing"
	"github.com/michaelscutari/dredge/internal/logging"
	"github.com/michaelscutari/dredge/internal/pathutil"
	"github.com/michaelscutari/dredge/internal/rollup"

	_ "modernc.org/sqlite"
)

const (
	snapshotPrefix = "dredge-"
	snapshotSuffix = ".db"
	latestName     = "latest.db"
)

// ErrTooManyErrors is returned when a crawl is stopped by the error limit.
var ErrTooManyErrors = errors.New("too many failed listing attempts")

// Progress is a point-in-time view of a running crawl.
type Progress struct {
	Pending        int
	Jobs           int64
	ListCalls      int64
	FailedAttempts int64
	Elapsed        time.Duration
}

// ProgressFunc is called periodically with current crawl progress.
type ProgressFunc func(p Progress)

// StageFunc is called when the crawl stage changes.
type StageFunc func(stage string)

// Manager handles the crawl lifecycle including locking and retention.
type Manager struct {
	outputDir    string
	retention    int
	maxErrors    int
	lockFile     *os.File
	progressFunc ProgressFunc
	stageFunc    StageFunc
	indexMode    string
	sqliteTmpDir string
	log          *slog.Logger
}

// NewManager creates a new snapshot manager.
func NewManager(outputDir string, retention int) *Manager {
	return &Manager{
		outputDir: outputDir,
		retention: retention,
		log:       logging.Discard(),
	}
}

// SetProgressFunc sets a callback for progress updates during a crawl.
func (m *Manager) SetProgressFunc(f ProgressFunc) {
	m.progressFunc = f
}

// SetStageFunc sets a callback for stage updates.
func (m *Manager) SetStageFunc(f StageFunc) {
	m.stageFunc = f
}

// SetIndexMode sets the index build mode: memory|disk|skip.
func (m *Manager) SetIndexMode(mode string) {
	m.indexMode = mode
}

// SetSQLiteTmpDir sets the temp directory for SQLite during index build.
func (m *Manager) SetSQLiteTmpDir(dir string) {
	m.sqliteTmpDir = dir
}

// SetMaxErrors stops a crawl once n listing attempts have failed. Zero
// disables the limit.
func (m *Manager) SetMaxErrors(n int) {
	m.maxErrors = n
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	if l != nil {
		m.log = l
	}
}

func (m *Manager) stage(name string) {
	m.log.Debug("stage", "stage", name)
	if m.stageFunc != nil {
		m.stageFunc(name)
	}
}

// RunCrawl crawls rootPath and stores the result as a new snapshot. It
// returns the snapshot's path. A failed crawl leaves no snapshot behind.
func (m *Manager) RunCrawl(ctx context.Context, lister listing.Lister, rootPath string, opts *crawl.Options) (string, error) {
	if opts == nil {
		opts = crawl.DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}
	rootPath = pathutil.FolderPath(rootPath)

	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := m.acquireLock(); err != nil {
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer m.releaseLock()

	tempPath := filepath.Join(m.outputDir, fmt.Sprintf(".dredge-temp-%d.db", time.Now().UnixNano()))
	database, err := sql.Open("sqlite", tempPath)
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to create database: %w", err)
	}
	fail := func(err error) (string, error) {
		database.Close()
		os.Remove(tempPath)
		return "", err
	}

	if err := db.InitSchema(database); err != nil {
		return fail(fmt.Errorf("failed to initialize schema: %w", err))
	}
	if err := db.ApplyWritePragmas(database); err != nil {
		return fail(fmt.Errorf("failed to apply pragmas: %w", err))
	}

	runID := uuid.NewString()
	start := time.Now()
	log := m.log.With("run", runID)
	log.Info("crawl started", "root", rootPath, "concurrency", opts.Concurrency, "retries", opts.RetryTimes)

	crawlCtx, cancelCrawl := context.WithCancel(ctx)
	defer cancelCrawl()

	dirCh := make(chan entry.Dir, 1024)
	fileCh := make(chan entry.File, 1024)
	errorCh := make(chan entry.CrawlError, 256)
	sink := &errorSink{ch: errorCh}

	var limitCancel context.CancelFunc
	if m.maxErrors > 0 {
		limitCancel = cancelCrawl
	}
	ing := db.NewIngester(database, fileCh, dirCh, errorCh, 1000, 500, m.maxErrors, log, limitCancel)
	ingestDone := make(chan error, 1)
	go func() {
		ingestDone <- ing.Run(ctx)
	}()
	closeInputs := func() error {
		cancelCrawl()
		sink.close()
		close(dirCh)
		close(fileCh)
		return <-ingestDone
	}

	var pending atomic.Int64
	crawlOpts := *opts
	crawlOpts.Logger = log
	crawlOpts.OnRetry = func(path string, attempt int, err error) {
		sink.send(crawlCtx, entry.CrawlError{Path: path, Attempt: attempt, Message: err.Error()})
		if opts.OnRetry != nil {
			opts.OnRetry(path, attempt, err)
		}
	}
	crawlOpts.OnProgress = func(n int) {
		pending.Store(int64(n))
		if opts.OnProgress != nil {
			opts.OnProgress(n)
		}
	}

	crawler, err := crawl.New(lister, &crawlOpts)
	if err != nil {
		closeInputs()
		return fail(err)
	}

	m.stage("crawl")
	progressDone := make(chan struct{})
	if m.progressFunc != nil {
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-progressDone:
					return
				case <-ticker.C:
					s := crawler.Stats()
					m.progressFunc(Progress{
						Pending:        int(pending.Load()),
						Jobs:           s.Jobs,
						ListCalls:      s.ListCalls,
						FailedAttempts: s.FailedAttempts,
						Elapsed:        time.Since(start),
					})
				}
			}
		}()
	}

	root, crawlErr := crawler.Crawl(crawlCtx, rootPath)
	close(progressDone)
	if crawlErr != nil {
		closeInputs()
		if m.maxErrors > 0 && ing.ErrorCount() >= int64(m.maxErrors) && ctx.Err() == nil {
			crawlErr = fmt.Errorf("%w (%d)", ErrTooManyErrors, ing.ErrorCount())
		}
		log.Error("crawl failed", "err", crawlErr)
		return fail(fmt.Errorf("crawl failed: %w", crawlErr))
	}

	m.stage("write")
	emitErr := db.EmitTree(ctx, rootPath, root, dirCh, fileCh)
	ingestErr := closeInputs()
	if emitErr != nil {
		return fail(fmt.Errorf("failed to write tree: %w", emitErr))
	}
	if ingestErr != nil {
		return fail(fmt.Errorf("failed to write tree: %w", ingestErr))
	}

	m.stage("rollup")
	builder := rollup.NewBuilder(database)
	builder.SetProgressFunc(func(done, total int64, depth, maxDepth int) {
		log.Debug("rollup level done", "depth", depth, "maxDepth", maxDepth, "folders", done, "of", total)
	})
	if err := builder.Build(ctx); err != nil {
		return fail(fmt.Errorf("failed to build rollups: %w", err))
	}

	written := ing.Progress()
	stats := crawler.Stats()
	meta := entry.CrawlMeta{
		RunID:       runID,
		RootPath:    rootPath,
		RootID:      opts.RootID,
		StartTime:   start,
		EndTime:     time.Now(),
		TotalSize:   written.TotalBytes,
		FileCount:   written.Files,
		DirCount:    written.Dirs,
		JobCount:    stats.Jobs,
		ListCalls:   stats.ListCalls,
		ErrorCount:  written.Errors,
		Concurrency: opts.Concurrency,
		RetryTimes:  opts.RetryTimes,
		Recursive:   opts.Recursive,
	}
	if err := db.WriteCrawlMeta(database, meta); err != nil {
		return fail(err)
	}

	if m.indexMode == "" {
		m.indexMode = "memory"
	}
	if m.indexMode != "skip" {
		m.stage("indexes")
		if err := db.ApplyIndexPragmas(database, m.indexMode == "disk", m.sqliteTmpDir); err != nil {
			return fail(fmt.Errorf("failed to apply index pragmas: %w", err))
		}
		if err := db.BuildIndexes(database); err != nil {
			return fail(fmt.Errorf("failed to build indexes: %w", err))
		}
	}

	m.stage("finalize")
	if err := db.Finalize(database); err != nil {
		return fail(fmt.Errorf("failed to finalize database: %w", err))
	}
	database.Close()

	finalName := snapshotPrefix + time.Now().Format("20060102-150405") + snapshotSuffix
	finalPath := filepath.Join(m.outputDir, finalName)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename database: %w", err)
	}

	// Update latest.db via temp symlink + rename.
	latestPath := filepath.Join(m.outputDir, latestName)
	tempLink := filepath.Join(m.outputDir, ".latest.db.tmp")
	os.Remove(tempLink)
	if err := os.Symlink(finalName, tempLink); err == nil {
		if err := os.Rename(tempLink, latestPath); err != nil {
			os.Remove(tempLink)
			log.Warn("failed to update latest.db symlink", "err", err)
		}
	} else {
		log.Warn("failed to create latest.db symlink", "err", err)
	}

	if err := m.pruneOldSnapshots(); err != nil {
		log.Warn("failed to prune old snapshots", "err", err)
	}

	log.Info("crawl finished", "snapshot", finalPath, "files", meta.FileCount, "dirs", meta.DirCount,
		"listCalls", meta.ListCalls, "recovered", meta.ErrorCount, "took", meta.EndTime.Sub(start))
	return finalPath, nil
}

// errorSink forwards recovered listing failures to the ingester. Sends after
// close are dropped: cancelled jobs may still report once the crawl settled.
type errorSink struct {
	mu     sync.Mutex
	ch     chan entry.CrawlError
	closed bool
}

func (s *errorSink) send(ctx context.Context, e entry.CrawlError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	case <-ctx.Done():
	}
}

func (s *errorSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (m *Manager) acquireLock() error {
	lockPath := filepath.Join(m.outputDir, ".dredge.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("another crawl is in progress")
	}

	m.lockFile = f
	return nil
}

func (m *Manager) releaseLock() {
	if m.lockFile != nil {
		syscall.Flock(int(m.lockFile.Fd()), syscall.LOCK_UN)
		m.lockFile.Close()
		m.lockFile = nil
	}
}

func isSnapshot(name string) bool {
	return strings.HasPrefix(name, snapshotPrefix) && strings.HasSuffix(name, snapshotSuffix)
}

func (m *Manager) pruneOldSnapshots() error {
	if m.retention <= 0 {
		return nil
	}

	snapshots, err := m.ListSnapshots()
	if err != nil {
		return err
	}

	// Names embed the timestamp, so sorted order is chronological.
	for len(snapshots) > m.retention {
		if err := os.Remove(snapshots[0]); err != nil {
			return fmt.Errorf("failed to remove %s: %w", snapshots[0], err)
		}
		snapshots = snapshots[1:]
	}

	return nil
}

// GetLatest returns the path to the latest snapshot.
func (m *Manager) GetLatest() (string, error) {
	latestPath := filepath.Join(m.outputDir, latestName)
	resolved, err := filepath.EvalSymlinks(latestPath)
	if err != nil {
		return "", fmt.Errorf("no latest snapshot found: %w", err)
	}
	return resolved, nil
}

// ListSnapshots returns all available snapshots sorted by date.
func (m *Manager) ListSnapshots() ([]string, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return nil, err
	}

	var snapshots []string
	for _, e := range entries {
		if !e.IsDir() && isSnapshot(e.Name()) {
			snapshots = append(snapshots, filepath.Join(m.outputDir, e.Name()))
		}
	}

	sort.Strings(snapshots)
	return snapshots, nil
}
