package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/pathutil"
)

// EmitTree walks a crawled tree and sends its rows to the ingester channels.
// Folder IDs are assigned depth-first starting at 1 for the root, which is
// stored under rootPath. It does not close the channels.
func EmitTree(ctx context.Context, rootPath string, root *entry.Node, dirCh chan<- entry.Dir, fileCh chan<- entry.File) error {
	rootPath = pathutil.FolderPath(rootPath)
	name := pathutil.Basename(rootPath)
	if name == "" {
		name = "/"
	}

	e := &emitter{ctx: ctx, dirCh: dirCh, fileCh: fileCh}
	e.nextID = 1
	rootDir := entry.Dir{ID: e.nextID, Path: rootPath, Name: name, Depth: 0, Listed: true}
	if err := e.sendDir(rootDir); err != nil {
		return err
	}
	return e.emit(root, rootDir)
}

type emitter struct {
	ctx    context.Context
	dirCh  chan<- entry.Dir
	fileCh chan<- entry.File
	nextID int64
}

func (e *emitter) emit(node *entry.Node, parent entry.Dir) error {
	for _, it := range node.Items() {
		if !it.Entry.IsFolder {
			if err := e.sendFile(entry.File{ParentID: parent.ID, DirectoryEntry: it.Entry}); err != nil {
				return err
			}
			continue
		}

		e.nextID++
		sub := it.Children()
		dir := entry.Dir{
			ID:       e.nextID,
			Path:     it.Entry.ResolvedPath,
			Name:     it.Entry.Name,
			ParentID: parent.ID,
			Depth:    parent.Depth + 1,
			Listed:   sub != nil,
		}
		if err := e.sendDir(dir); err != nil {
			return err
		}
		if sub != nil {
			if err := e.emit(sub, dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *emitter) sendDir(d entry.Dir) error {
	select {
	case e.dirCh <- d:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

func (e *emitter) sendFile(f entry.File) error {
	select {
	case e.fileCh <- f:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// WriteTree stores a crawled tree in db through an Ingester and returns the
// ingested counts. Rollups are not computed.
func WriteTree(ctx context.Context, db *sql.DB, rootPath string, root *entry.Node, batchSize int, logger *slog.Logger) (Progress, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dirCh := make(chan entry.Dir, batchSize)
	fileCh := make(chan entry.File, batchSize)
	ing := NewIngester(db, fileCh, dirCh, nil, batchSize, 0, 0, logger, nil)

	done := make(chan error, 1)
	go func() {
		done <- ing.Run(ctx)
	}()

	emitErr := EmitTree(ctx, rootPath, root, dirCh, fileCh)
	close(dirCh)
	close(fileCh)
	if emitErr != nil {
		cancel()
		<-done
		return ing.Progress(), fmt.Errorf("failed to emit tree: %w", emitErr)
	}

	if err := <-done; err != nil {
		return ing.Progress(), err
	}
	return ing.Progress(), nil
}

// WriteCrawlMeta stores the single crawl_meta row.
func WriteCrawlMeta(db *sql.DB, m entry.CrawlMeta) error {
	var endTime any
	if !m.EndTime.IsZero() {
		endTime = m.EndTime.Unix()
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO crawl_meta (id, run_id, root_path, root_id, start_time, end_time,
			total_size, file_count, dir_count, job_count, list_calls, error_count,
			concurrency, retry_times, recursive)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.RunID, m.RootPath, m.RootID, m.StartTime.Unix(), endTime,
		m.TotalSize, m.FileCount, m.DirCount, m.JobCount, m.ListCalls, m.ErrorCount,
		m.Concurrency, m.RetryTimes, m.Recursive)
	if err != nil {
		return fmt.Errorf("failed to write crawl meta: %w", err)
	}
	return nil
}
