package rollup

import (
	"context"
	"database/sql"
	"testing"

	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/entry"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	if err := db.InitSchema(database); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return database
}

func TestBuilderRollup(t *testing.T) {
	database := openTestDB(t)

	insertDir := func(id int64, path, name string, parent any, depth int) {
		_, err := database.Exec(
			`INSERT INTO dirs (id, path, name, parent_id, depth, listed) VALUES (?, ?, ?, ?, ?, 1)`,
			id, path, name, parent, depth,
		)
		if err != nil {
			t.Fatalf("insert %s: %v", path, err)
		}
	}
	insertFile := func(parentID int64, path, name string, size int64) {
		_, err := database.Exec(
			`INSERT INTO entries (parent_id, name, kind, mime_type, size, has_size, human_size, path, download_url)
			 VALUES (?, ?, 0, 'text/plain', ?, 1, '', ?, '')`,
			parentID, name, size, path,
		)
		if err != nil {
			t.Fatalf("insert %s: %v", path, err)
		}
	}

	insertDir(1, "/root/", "root", nil, 0)
	insertDir(2, "/root/a/", "a", 1, 1)
	insertFile(2, "/root/a/file1", "file1", 10)
	insertFile(2, "/root/a/file2", "file2", 5)
	insertDir(3, "/root/b/", "b", 1, 1)
	insertFile(3, "/root/b/file3", "file3", 20)
	insertDir(4, "/root/b/empty/", "empty", 3, 2)

	var calls int
	builder := NewBuilder(database)
	builder.SetProgressFunc(func(done, total int64, depth, maxDepth int) {
		calls++
		if total != 4 || maxDepth != 2 {
			t.Fatalf("unexpected progress total=%d maxDepth=%d", total, maxDepth)
		}
	})
	if err := builder.Build(context.Background()); err != nil {
		t.Fatalf("build rollups: %v", err)
	}
	if calls == 0 {
		t.Fatalf("expected a final progress report")
	}

	a, err := db.GetRollup(database, "/root/a")
	if err != nil || a == nil {
		t.Fatalf("rollup /root/a: %v", err)
	}
	if a.TotalSize != 15 || a.TotalFiles != 2 || a.TotalDirs != 0 {
		t.Fatalf("unexpected /root/a rollup: %+v", a)
	}

	root, err := db.GetRollup(database, "/root/")
	if err != nil || root == nil {
		t.Fatalf("rollup /root: %v", err)
	}
	if root.TotalSize != 35 || root.TotalFiles != 3 || root.TotalDirs != 3 {
		t.Fatalf("unexpected /root rollup: %+v", root)
	}
}

func TestBuilderHonorsCancel(t *testing.T) {
	database := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewBuilder(database).Build(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func sampleTree() *entry.Node {
	norm := entry.Normalizer{BaseURL: "https://idx.example/0:"}
	root := entry.NewNode()
	root.Insert(norm.Normalize(entry.RawRecord{Name: "f", MimeType: "text/plain", Size: "10"}, "/", ""))
	root.Insert(norm.Normalize(entry.RawRecord{Name: "A", MimeType: entry.FolderMimeType}, "/", ""))
	root.Insert(norm.Normalize(entry.RawRecord{Name: "B", MimeType: entry.FolderMimeType}, "/", ""))
	root.Insert(norm.Normalize(entry.RawRecord{Name: "C", MimeType: entry.FolderMimeType}, "/", ""))

	a, _ := root.Expand("A")
	a.Insert(norm.Normalize(entry.RawRecord{Name: "a1", MimeType: "text/plain", Size: "20"}, "/A/", ""))
	a.Insert(norm.Normalize(entry.RawRecord{Name: "a2", MimeType: "text/plain"}, "/A/", ""))

	b, _ := root.Expand("B")
	b.Insert(norm.Normalize(entry.RawRecord{Name: "B1", MimeType: entry.FolderMimeType}, "/B/", ""))
	b.Expand("B1")
	// C is never listed.
	return root
}

func TestBuildFromTree(t *testing.T) {
	rollups := Build("/", sampleTree())

	want := map[string]entry.Rollup{
		"/":      {Path: "/", TotalSize: 30, TotalFiles: 3, TotalDirs: 4},
		"/A/":    {Path: "/A/", TotalSize: 20, TotalFiles: 2},
		"/B/":    {Path: "/B/", TotalDirs: 1},
		"/B/B1/": {Path: "/B/B1/"},
		"/C/":    {Path: "/C/"},
	}
	if len(rollups) != len(want) {
		t.Fatalf("expected %d rollups, got %d: %+v", len(want), len(rollups), rollups)
	}
	for path, w := range want {
		if got := rollups[path]; got != w {
			t.Fatalf("rollup %s: expected %+v, got %+v", path, w, got)
		}
	}
}

func TestBuildMatchesBuilder(t *testing.T) {
	database := openTestDB(t)
	tree := sampleTree()

	if _, err := db.WriteTree(context.Background(), database, "/", tree, 2, nil); err != nil {
		t.Fatalf("write tree: %v", err)
	}
	if err := NewBuilder(database).Build(context.Background()); err != nil {
		t.Fatalf("build rollups: %v", err)
	}

	for path, want := range Build("/", tree) {
		got, err := db.GetRollup(database, path)
		if err != nil || got == nil {
			t.Fatalf("rollup %s: %v", path, err)
		}
		if got.TotalSize != want.TotalSize || got.TotalFiles != want.TotalFiles || got.TotalDirs != want.TotalDirs {
			t.Fatalf("rollup %s: tree %+v, db %+v", path, want, got)
		}
	}
}
