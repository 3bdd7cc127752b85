package entry

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/michaelscutari/dredge/internal/pathutil"
)

// FolderMimeType marks a listing record as a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

const charsetSuffix = "; charset="

// Kind represents the type of a remote entry.
type Kind uint8

const (
	KindFile Kind = 0
	KindDir  Kind = 1
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// RawRecord is one item as returned by the listing API.
type RawRecord struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     string `json:"size,omitempty"` // decimal byte count, empty when unknown
}

// DirectoryEntry is a normalized listing record.
type DirectoryEntry struct {
	Name         string
	IsFolder     bool
	MimeType     string
	RawSizeBytes int64
	HasSize      bool
	HumanSize    string
	ResolvedPath string // folder paths end in "/"
	DownloadURL  string
}

// Kind reports whether the entry is a file or a folder.
func (e DirectoryEntry) Kind() Kind {
	if e.IsFolder {
		return KindDir
	}
	return KindFile
}

// Normalizer turns raw listing records into DirectoryEntry values.
// BaseURL is the index API base that download URLs are resolved against.
type Normalizer struct {
	BaseURL string
}

// Normalize converts raw, listed under parentPath, into a DirectoryEntry.
// It performs no I/O and returns the same result for the same input.
// A size that is not a non-negative integer is treated as absent.
func (n Normalizer) Normalize(raw RawRecord, parentPath, rootID string) DirectoryEntry {
	mime := raw.MimeType
	if i := strings.Index(mime, charsetSuffix); i >= 0 {
		mime = mime[:i]
	}

	e := DirectoryEntry{
		Name:     raw.Name,
		MimeType: mime,
		IsFolder: mime == FolderMimeType,
	}

	e.ResolvedPath = pathutil.ResolveChildPath(parentPath, pathutil.EscapeName(raw.Name))
	if e.IsFolder {
		e.ResolvedPath += "/"
	}
	e.DownloadURL = pathutil.DownloadURL(n.BaseURL, e.ResolvedPath, rootID)

	if raw.Size != "" {
		if size, err := strconv.ParseInt(raw.Size, 10, 64); err == nil && size >= 0 {
			e.RawSizeBytes = size
			e.HasSize = true
			e.HumanSize = humanize.Bytes(uint64(size))
		}
	}

	return e
}

// Dir represents a folder row stored in the database.
type Dir struct {
	ID       int64
	Path     string
	Name     string
	ParentID int64
	Depth    int
	Listed   bool // false for folders seen but never listed
}

// File is a file row stored in the database.
type File struct {
	ParentID int64
	DirectoryEntry
}

// CrawlError records a listing attempt that failed but was later retried.
type CrawlError struct {
	Path    string
	Attempt int
	Message string
}

// Rollup represents aggregated statistics for a folder.
type Rollup struct {
	Path       string
	DirID      int64
	TotalSize  int64
	TotalFiles int64
	TotalDirs  int64
}

// CrawlMeta holds metadata about a crawl.
type CrawlMeta struct {
	RunID       string
	RootPath    string
	RootID      string
	StartTime   time.Time
	EndTime     time.Time
	TotalSize   int64
	FileCount   int64
	DirCount    int64
	JobCount    int64
	ListCalls   int64
	ErrorCount  int64
	Concurrency int
	RetryTimes  int
	Recursive   bool
}
