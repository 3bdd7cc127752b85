package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/pathutil"
)

// ErrNotFound is returned when a folder path is not in the snapshot.
var ErrNotFound = errors.New("path not found in snapshot")

// ErrNotListed is returned when files are requested for a folder the crawl
// discovered but never listed.
var ErrNotListed = errors.New("folder was not listed")

// DisplayEntry combines entry data with rollup data for display.
type DisplayEntry struct {
	Path        string
	Name        string
	Kind        entry.Kind
	Size        int64
	HasSize     bool
	DownloadURL string // empty for folders
	Listed      bool
	TotalSize   int64 // rollup for folders, own size for files
	TotalFiles  int64
	TotalDirs   int64
}

// LoadChildren loads the direct children of a folder with rollup data.
func LoadChildren(db *sql.DB, parentPath, sortBy string, limit int) ([]DisplayEntry, error) {
	orderClause := "total_size DESC, name ASC"
	switch sortBy {
	case "name":
		orderClause = "name ASC"
	case "files":
		orderClause = "total_files DESC, name ASC"
	case "dirs":
		orderClause = "total_dirs DESC, name ASC"
	case "size":
		orderClause = "total_size DESC, name ASC"
	}

	query := fmt.Sprintf(`
		SELECT d.path, d.name, ? as kind, 0 as size, 0 as has_size, '' as download_url, d.listed,
		       COALESCE(r.total_size, 0) as total_size,
		       COALESCE(r.total_files, 0) as total_files,
		       COALESCE(r.total_dirs, 0) as total_dirs
		FROM dirs d
		LEFT JOIN rollups r ON r.dir_id = d.id
		WHERE d.parent_id = ?

		UNION ALL

		SELECT e.path, e.name, e.kind, e.size, e.has_size, e.download_url, 1 as listed,
		       e.size as total_size,
		       1 as total_files,
		       0 as total_dirs
		FROM entries e
		WHERE e.parent_id = ?
		ORDER BY %s
		LIMIT ?
	`, orderClause)

	parentID, err := lookupDirID(db, parentPath)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(query, entry.KindDir, parentID, parentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var entries []DisplayEntry
	for rows.Next() {
		var e DisplayEntry
		if err := rows.Scan(&e.Path, &e.Name, &e.Kind, &e.Size, &e.HasSize, &e.DownloadURL, &e.Listed, &e.TotalSize, &e.TotalFiles, &e.TotalDirs); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// LoadFiles returns every file at or beneath path, ordered by path. A file
// path returns just that file. Unlisted folders below path contribute
// nothing.
func LoadFiles(db *sql.DB, path string) ([]entry.DirectoryEntry, error) {
	path = pathutil.Normalize(path)

	var rows *sql.Rows
	var err error
	if ref, lookupErr := lookupFolder(db, path); lookupErr == nil {
		if !ref.listed {
			return nil, fmt.Errorf("%s: %w", path, ErrNotListed)
		}
		folder := pathutil.FolderPath(path)
		rows, err = db.Query(`
			SELECT name, mime_type, size, has_size, human_size, path, download_url
			FROM entries
			WHERE substr(path, 1, length(?)) = ?
			ORDER BY path
		`, folder, folder)
	} else {
		rows, err = db.Query(`
			SELECT name, mime_type, size, has_size, human_size, path, download_url
			FROM entries WHERE path = ?
		`, path)
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var files []entry.DirectoryEntry
	for rows.Next() {
		var f entry.DirectoryEntry
		if err := rows.Scan(&f.Name, &f.MimeType, &f.RawSizeBytes, &f.HasSize, &f.HumanSize, &f.ResolvedPath, &f.DownloadURL); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(files) == 0 && !isDir(db, path) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return files, nil
}

func isDir(db *sql.DB, path string) bool {
	_, err := lookupFolder(db, path)
	return err == nil
}

func lookupDirID(db *sql.DB, path string) (int64, error) {
	ref, err := lookupFolder(db, path)
	return ref.id, err
}

// lookupFolder resolves a folder path through the per-db cache.
func lookupFolder(db *sql.DB, path string) (folderRef, error) {
	path = pathutil.FolderPath(path)
	cache := folderCacheFor(db)
	if ref, ok := cache.get(path); ok {
		return ref, nil
	}

	var ref folderRef
	err := db.QueryRow(`SELECT id, listed FROM dirs WHERE path = ?`, path).Scan(&ref.id, &ref.listed)
	if errors.Is(err, sql.ErrNoRows) {
		return folderRef{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return folderRef{}, err
	}
	cache.put(path, ref)
	return ref, nil
}

// RootPath returns the path of the snapshot's root folder.
func RootPath(db *sql.DB) (string, error) {
	var path string
	if err := db.QueryRow(`SELECT path FROM dirs WHERE parent_id IS NULL ORDER BY id LIMIT 1`).Scan(&path); err != nil {
		return "", fmt.Errorf("failed to find root folder: %w", err)
	}
	return path, nil
}

// GetRollup retrieves rollup data for a folder. It returns nil when the folder
// or its rollup is missing.
func GetRollup(db *sql.DB, path string) (*entry.Rollup, error) {
	dirID, err := lookupDirID(db, path)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r := entry.Rollup{Path: pathutil.FolderPath(path), DirID: dirID}
	err = db.QueryRow(`
		SELECT total_size, total_files, total_dirs
		FROM rollups WHERE dir_id = ?
	`, dirID).Scan(&r.TotalSize, &r.TotalFiles, &r.TotalDirs)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// ListErrors returns the sampled recovered crawl errors.
func ListErrors(db *sql.DB, limit int) ([]entry.CrawlError, error) {
	rows, err := db.Query(`SELECT path, attempt, message FROM crawl_errors ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []entry.CrawlError
	for rows.Next() {
		var e entry.CrawlError
		if err := rows.Scan(&e.Path, &e.Attempt, &e.Message); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetCrawlMeta retrieves crawl metadata.
func GetCrawlMeta(db *sql.DB) (*entry.CrawlMeta, error) {
	var m entry.CrawlMeta
	var startTime, endTime int64

	err := db.QueryRow(`
		SELECT run_id, root_path, root_id, start_time, COALESCE(end_time, 0),
		       total_size, file_count, dir_count, job_count, list_calls, error_count,
		       concurrency, retry_times, recursive
		FROM crawl_meta WHERE id = 1
	`).Scan(&m.RunID, &m.RootPath, &m.RootID, &startTime, &endTime,
		&m.TotalSize, &m.FileCount, &m.DirCount, &m.JobCount, &m.ListCalls, &m.ErrorCount,
		&m.Concurrency, &m.RetryTimes, &m.Recursive)

	if err != nil {
		return nil, err
	}

	m.StartTime = time.Unix(startTime, 0)
	if endTime > 0 {
		m.EndTime = time.Unix(endTime, 0)
	}

	return &m, nil
}
