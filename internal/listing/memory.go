package listing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/pathutil"
)

// MemoryLister serves listings from an in-memory tree.
type MemoryLister struct {
	mu       sync.Mutex
	folders  map[string][]entry.RawRecord
	failures map[string]int
	calls    map[string]int
	latency  time.Duration

	active    atomic.Int64
	maxActive atomic.Int64
	total     atomic.Int64
}

// NewMemoryLister creates an empty lister. The root folder "/" always exists.
func NewMemoryLister() *MemoryLister {
	return &MemoryLister{
		folders:  map[string][]entry.RawRecord{"/": nil},
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

// SetLatency delays every List call by d.
func (m *MemoryLister) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// AddFolder registers an (empty) folder at path and returns its normalized path.
func (m *MemoryLister) AddFolder(path string) string {
	folder := folderKey(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.folders[folder]; !ok {
		m.folders[folder] = nil
	}
	return folder
}

// Add appends a record to the folder at parent, creating the folder if needed.
// Folder records also register the child folder so it can be listed.
func (m *MemoryLister) Add(parent string, rec entry.RawRecord) {
	folder := folderKey(parent)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[folder] = append(m.folders[folder], rec)
	if rec.MimeType == entry.FolderMimeType {
		child := pathutil.ResolveChildPath(folder, pathutil.EscapeName(rec.Name)) + "/"
		if _, ok := m.folders[child]; !ok {
			m.folders[child] = nil
		}
	}
}

// AddFile is shorthand for adding a sized file record.
func (m *MemoryLister) AddFile(parent, name string, size int64) {
	m.Add(parent, entry.RawRecord{Name: name, MimeType: "application/octet-stream", Size: fmt.Sprint(size)})
}

// AddDir is shorthand for adding a folder record.
func (m *MemoryLister) AddDir(parent, name string) string {
	m.Add(parent, entry.RawRecord{Name: name, MimeType: entry.FolderMimeType})
	return pathutil.ResolveChildPath(folderKey(parent), pathutil.EscapeName(name)) + "/"
}

// FailNext makes the next n List calls for path fail.
func (m *MemoryLister) FailNext(path string, n int) {
	m.mu.Lock()
	m.failures[folderKey(path)] = n
	m.mu.Unlock()
}

// Calls returns how many times path was listed, failures included.
func (m *MemoryLister) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[folderKey(path)]
}

// TotalCalls returns the number of List calls made.
func (m *MemoryLister) TotalCalls() int64 {
	return m.total.Load()
}

// MaxConcurrent returns the highest number of List calls observed running at once.
func (m *MemoryLister) MaxConcurrent() int64 {
	return m.maxActive.Load()
}

// List implements Lister.
func (m *MemoryLister) List(ctx context.Context, path, rootID string) ([]entry.RawRecord, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		peak := m.maxActive.Load()
		if n <= peak || m.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	m.total.Add(1)

	folder := folderKey(path)
	m.mu.Lock()
	m.calls[folder]++
	latency := m.latency
	fail := m.failures[folder] > 0
	if fail {
		m.failures[folder]--
	}
	records, ok := m.folders[folder]
	out := append([]entry.RawRecord(nil), records...)
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(latency):
		}
	}

	if fail {
		return nil, fmt.Errorf("listing: injected failure for %s", folder)
	}
	if !ok {
		return nil, &StatusError{Code: 404, Status: "404 Not Found", URL: folder}
	}
	return out, nil
}

func folderKey(path string) string {
	return pathutil.AsFolder(path)
}
