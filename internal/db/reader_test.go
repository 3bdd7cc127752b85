package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

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

	if err := InitSchema(database); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return database
}

// testTree builds / = {big (200), small (50), docs/ = {readme (100)}, later/ (never listed)}.
func testTree() *entry.Node {
	norm := entry.Normalizer{BaseURL: "https://idx.example/0:"}
	root := entry.NewNode()
	root.Insert(norm.Normalize(entry.RawRecord{Name: "big", MimeType: "video/mp4", Size: "200"}, "/", ""))
	root.Insert(norm.Normalize(entry.RawRecord{Name: "small", MimeType: "text/plain", Size: "50"}, "/", ""))
	root.Insert(norm.Normalize(entry.RawRecord{Name: "docs", MimeType: entry.FolderMimeType}, "/", ""))
	root.Insert(norm.Normalize(entry.RawRecord{Name: "later", MimeType: entry.FolderMimeType}, "/", ""))

	docs, _ := root.Expand("docs")
	docs.Insert(norm.Normalize(entry.RawRecord{Name: "readme", MimeType: "text/plain", Size: "100"}, "/docs/", ""))
	return root
}

func TestLoadChildrenSortsFilesAndDirsBySize(t *testing.T) {
	database := openTestDB(t)

	if _, err := WriteTree(context.Background(), database, "/", testTree(), 10, nil); err != nil {
		t.Fatalf("write tree: %v", err)
	}

	docsID, err := lookupDirID(database, "/docs/")
	if err != nil {
		t.Fatalf("lookup docs: %v", err)
	}
	_, err = database.Exec(
		`INSERT INTO rollups (dir_id, total_size, total_files, total_dirs) VALUES (?, ?, ?, ?)`,
		docsID, 100, 1, 0,
	)
	if err != nil {
		t.Fatalf("insert rollup: %v", err)
	}

	children, err := LoadChildren(database, "/", "size", 10)
	if err != nil {
		t.Fatalf("load children: %v", err)
	}
	if len(children) != 4 {
		t.Fatalf("expected 4 children, got %d", len(children))
	}

	wantOrder := []string{"big", "docs", "small", "later"}
	for i, name := range wantOrder {
		if children[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, children[i].Name)
		}
	}

	if children[0].Kind != entry.KindFile || children[0].DownloadURL != "https://idx.example/0:/big" {
		t.Fatalf("unexpected file row: %+v", children[0])
	}
	if children[1].Kind != entry.KindDir || !children[1].Listed || children[1].TotalFiles != 1 {
		t.Fatalf("unexpected folder row: %+v", children[1])
	}
	if children[3].Listed {
		t.Fatalf("expected later/ to be marked unlisted")
	}

	byName, err := LoadChildren(database, "/", "name", 2)
	if err != nil {
		t.Fatalf("load children by name: %v", err)
	}
	if len(byName) != 2 || byName[0].Name != "big" || byName[1].Name != "docs" {
		t.Fatalf("unexpected name order: %+v", byName)
	}
}

func TestLoadChildrenUnknownPath(t *testing.T) {
	database := openTestDB(t)
	if _, err := LoadChildren(database, "/missing", "size", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadFiles(t *testing.T) {
	database := openTestDB(t)
	if _, err := WriteTree(context.Background(), database, "/", testTree(), 10, nil); err != nil {
		t.Fatalf("write tree: %v", err)
	}

	all, err := LoadFiles(database, "/")
	if err != nil {
		t.Fatalf("load files: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 files, got %d", len(all))
	}
	if all[0].ResolvedPath != "/big" || all[1].ResolvedPath != "/docs/readme" || all[2].ResolvedPath != "/small" {
		t.Fatalf("unexpected order: %s %s %s", all[0].ResolvedPath, all[1].ResolvedPath, all[2].ResolvedPath)
	}

	docs, err := LoadFiles(database, "/docs")
	if err != nil || len(docs) != 1 || docs[0].Name != "readme" {
		t.Fatalf("load /docs: %v %+v", err, docs)
	}

	one, err := LoadFiles(database, "/small")
	if err != nil || len(one) != 1 || one[0].RawSizeBytes != 50 || one[0].HumanSize != "50 B" {
		t.Fatalf("load /small: %v %+v", err, one)
	}

	if _, err := LoadFiles(database, "/later/"); !errors.Is(err, ErrNotListed) {
		t.Fatalf("expected ErrNotListed for /later/, got %v", err)
	}

	if _, err := LoadFiles(database, "/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCrawlMetaRoundTrip(t *testing.T) {
	database := openTestDB(t)
	start := time.Unix(1700000000, 0)
	meta := entry.CrawlMeta{
		RunID:       "run-1",
		RootPath:    "/",
		RootID:      "0",
		StartTime:   start,
		EndTime:     start.Add(time.Minute),
		TotalSize:   350,
		FileCount:   3,
		DirCount:    2,
		JobCount:    2,
		ListCalls:   3,
		ErrorCount:  1,
		Concurrency: 5,
		RetryTimes:  3,
		Recursive:   true,
	}
	if err := WriteCrawlMeta(database, meta); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	got, err := GetCrawlMeta(database)
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if !got.StartTime.Equal(meta.StartTime) || !got.EndTime.Equal(meta.EndTime) {
		t.Fatalf("time mismatch: got %v..%v", got.StartTime, got.EndTime)
	}
	got.StartTime, got.EndTime = meta.StartTime, meta.EndTime
	if *got != meta {
		t.Fatalf("meta mismatch:\n got %+v\nwant %+v", *got, meta)
	}

	root, err := RootPath(database)
	if err == nil {
		t.Fatalf("expected no root folder in an empty snapshot, got %q", root)
	}
}

func TestCheckSchema(t *testing.T) {
	database := openTestDB(t)
	if err := CheckSchema(database); err != nil {
		t.Fatalf("fresh schema: %v", err)
	}

	if _, err := database.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("reset version: %v", err)
	}
	if err := CheckSchema(database); !errors.Is(err, ErrSchemaVersion) {
		t.Fatalf("expected ErrSchemaVersion, got %v", err)
	}
}
