package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/michaelscutari/dredge/internal/crawl"
	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/listing"
	"github.com/michaelscutari/dredge/internal/rollup"

	_ "modernc.org/sqlite"
)

type treeShape struct {
	fanout   int
	depth    int
	files    int
	failRate float64
	seed     int64
}

func main() {
	fanout := flag.Int("fanout", 4, "Subfolders per folder")
	depth := flag.Int("depth", 4, "Folder depth below the root")
	files := flag.Int("files", 10, "Files per folder")
	latency := flag.Duration("latency", 5*time.Millisecond, "Simulated latency per listing call")
	failRate := flag.Float64("fail-rate", 0, "Fraction of folders whose first listing fails")
	retries := flag.Int("retry", 3, "Extra attempts after a failed listing")
	levels := flag.String("concurrency", "1,2,4,8,16", "Comma-separated concurrency levels to run")
	seed := flag.Int64("seed", 0, "Tree seed (0 = time-based)")
	sqliteOut := flag.String("sqlite-out", "", "Also time writing the tree to a temp SQLite DB in this directory")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	shape := treeShape{fanout: *fanout, depth: *depth, files: *files, failRate: *failRate, seed: *seed}

	var concurrency []int
	for _, s := range strings.Split(*levels, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 {
			fmt.Fprintf(os.Stderr, "bad concurrency level %q\n", s)
			os.Exit(2)
		}
		concurrency = append(concurrency, n)
	}

	fmt.Printf("fanout=%d depth=%d files=%d latency=%v fail-rate=%.2f retry=%d seed=%d\n",
		*fanout, *depth, *files, *latency, *failRate, *retries, *seed)

	for _, n := range concurrency {
		lister := buildLister(shape)
		lister.SetLatency(*latency)

		opts := crawl.DefaultOptions().WithConcurrency(n).WithRetryTimes(*retries)
		c, err := crawl.New(lister, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "options error: %v\n", err)
			os.Exit(1)
		}

		start := time.Now()
		root, err := c.Crawl(context.Background(), "/")
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "concurrency=%d crawl error: %v\n", n, err)
			continue
		}

		stats := c.Stats()
		totals := rollup.Build("/", root)["/"]
		fmt.Printf("concurrency=%-3d folders=%d calls=%d failed=%d peak=%d files=%d size=%s total=%v",
			n, stats.Jobs, stats.ListCalls, stats.FailedAttempts, stats.PeakInFlight,
			totals.TotalFiles, humanize.IBytes(uint64(totals.TotalSize)), elapsed.Round(time.Millisecond))
		if elapsed.Seconds() > 0 {
			fmt.Printf(" throughput=%.0f folders/sec", float64(stats.Jobs)/elapsed.Seconds())
		}
		fmt.Println()

		if *sqliteOut != "" {
			if err := benchWrite(*sqliteOut, root); err != nil {
				fmt.Fprintf(os.Stderr, "sqlite error: %v\n", err)
				os.Exit(1)
			}
		}
	}
}

// buildLister generates the same tree for the same shape.
func buildLister(s treeShape) *listing.MemoryLister {
	rng := rand.New(rand.NewSource(s.seed))
	l := listing.NewMemoryLister()
	var fill func(folder string, level int)
	fill = func(folder string, level int) {
		for i := 0; i < s.files; i++ {
			l.AddFile(folder, fmt.Sprintf("file-%d.bin", i), rng.Int63n(1<<30))
		}
		if level == s.depth {
			return
		}
		for i := 0; i < s.fanout; i++ {
			child := l.AddDir(folder, fmt.Sprintf("dir-%d", i))
			if s.failRate > 0 && rng.Float64() < s.failRate {
				l.FailNext(child, 1)
			}
			fill(child, level+1)
		}
	}
	fill("/", 0)
	return l
}

// benchWrite times storing root and computing its rollups in a throwaway
// database under outDir.
func benchWrite(outDir string, root *entry.Node) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	dbPath := filepath.Join(outDir, fmt.Sprintf(".dredgebench-%d.db", time.Now().UnixNano()))
	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer func() {
		database.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}()

	if err := db.InitSchema(database); err != nil {
		return err
	}
	if err := db.ApplyWritePragmas(database); err != nil {
		return err
	}

	ctx := context.Background()
	start := time.Now()
	written, err := db.WriteTree(ctx, database, "/", root, 10000, nil)
	if err != nil {
		return err
	}
	writeDur := time.Since(start)

	start = time.Now()
	if err := rollup.NewBuilder(database).Build(ctx); err != nil {
		return err
	}
	rollupDur := time.Since(start)

	rows := written.Files + written.Dirs
	fmt.Printf("  sqlite: rows=%d write=%v rollup=%v", rows, writeDur.Round(time.Millisecond), rollupDur.Round(time.Millisecond))
	if writeDur.Seconds() > 0 {
		fmt.Printf(" throughput=%.0f rows/sec", float64(rows)/writeDur.Seconds())
	}
	fmt.Println()
	return nil
}
