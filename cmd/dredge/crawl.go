package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/michaelscutari/dredge/internal/crawl"
	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/listing"
	"github.com/michaelscutari/dredge/internal/snapshot"
	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var crawlCmd = &cobra.Command{
	Use:   "crawl [path]",
	Short: "Crawl a folder of the index into a snapshot",
	Long: `Crawl a folder of the drive index (default "/") and store the tree,
folder totals and recovered listing errors in a SQLite snapshot.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCrawl,
}

var (
	crawlAPI         string
	crawlRootID      string
	crawlPassword    string
	crawlConcurrency int
	crawlRetry       int
	crawlRecursive   bool
	crawlOut         string
	crawlRetention   int
	crawlExclude     []string
	crawlMaxErrors   int
	crawlProgress    time.Duration
	crawlIndexMode   string
	crawlSQLiteTmp   string
)

func init() {
	f := crawlCmd.Flags()
	f.StringVar(&crawlAPI, "api", "", "Index base URL (overrides api.base_url)")
	f.StringVar(&crawlRootID, "root-id", "", "Drive id on multi-drive indexes")
	f.StringVar(&crawlPassword, "password", "", "Index password")
	f.IntVarP(&crawlConcurrency, "concurrency", "c", 0, "Maximum listing requests in flight")
	f.IntVar(&crawlRetry, "retry", 0, "Extra attempts after a failed listing")
	f.BoolVar(&crawlRecursive, "recursive", true, "Descend into subfolders")
	f.StringVarP(&crawlOut, "out", "o", "", "Output directory for snapshots (overrides snapshot.dir)")
	f.IntVar(&crawlRetention, "retention", 0, "Number of snapshots to retain (0 = unlimited)")
	f.StringSliceVarP(&crawlExclude, "exclude", "e", nil, "Regex patterns to exclude (can be repeated)")
	f.IntVar(&crawlMaxErrors, "max-errors", 0, "Stop after N failed listing attempts (0 = unlimited)")
	f.DurationVar(&crawlProgress, "progress-interval", 30*time.Second, "Emit progress lines to stderr at this interval when not a TTY (0 to disable)")
	f.StringVar(&crawlIndexMode, "index-mode", "memory", "Index build mode: memory|disk|skip")
	f.StringVar(&crawlSQLiteTmp, "sqlite-tmp-dir", "", "Directory for SQLite temp files during index build")
}

// applyCrawlFlags lets explicitly set flags win over file and env config.
func applyCrawlFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("api") {
		cfg.API.BaseURL = crawlAPI
	}
	if f.Changed("root-id") {
		cfg.API.RootID = crawlRootID
	}
	if f.Changed("password") {
		cfg.API.Password = crawlPassword
	}
	if f.Changed("concurrency") {
		cfg.Crawl.Concurrency = crawlConcurrency
	}
	if f.Changed("retry") {
		cfg.Crawl.RetryTimes = crawlRetry
	}
	if f.Changed("recursive") {
		cfg.Crawl.Recursive = crawlRecursive
	}
	if f.Changed("out") {
		cfg.Snapshot.Dir = crawlOut
	}
	if f.Changed("retention") {
		cfg.Snapshot.Retention = crawlRetention
	}
	if f.Changed("exclude") {
		cfg.Crawl.Exclude = crawlExclude
	}
	if f.Changed("max-errors") {
		cfg.Crawl.MaxErrors = crawlMaxErrors
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	applyCrawlFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireAPI(); err != nil {
		return err
	}

	root := "/"
	if len(args) == 1 {
		root = args[0]
	}

	outDir, err := filepath.Abs(cfg.Snapshot.Dir)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	switch crawlIndexMode {
	case "memory", "disk", "skip":
	default:
		return fmt.Errorf("invalid index mode %q (expected memory|disk|skip)", crawlIndexMode)
	}

	client, err := listing.NewClient(listing.Options{
		BaseURL:  cfg.API.BaseURL,
		Password: cfg.API.Password,
		Timeout:  cfg.API.Timeout,
	})
	if err != nil {
		return err
	}

	opts := crawl.DefaultOptions().
		WithConcurrency(cfg.Crawl.Concurrency).
		WithRetryTimes(cfg.Crawl.RetryTimes).
		WithRecursive(cfg.Crawl.Recursive).
		WithRootID(cfg.API.RootID).
		WithBaseURL(cfg.API.BaseURL)
	for _, pattern := range cfg.Crawl.Exclude {
		if err := opts.AddExcludePattern(pattern); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	warnMixedContent()
	fmt.Printf("Crawling %s%s...\n", cfg.API.BaseURL, root)

	mgr := snapshot.NewManager(outDir, cfg.Snapshot.Retention)
	mgr.SetIndexMode(crawlIndexMode)
	mgr.SetMaxErrors(cfg.Crawl.MaxErrors)
	mgr.SetLogger(logger)
	if crawlSQLiteTmp != "" {
		mgr.SetSQLiteTmpDir(crawlSQLiteTmp)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nCanceling... (press Ctrl+C again to force)")
		cancel()
		<-sigCh
		os.Exit(130)
	}()
	startTime := time.Now()

	var last atomic.Pointer[snapshot.Progress]
	last.Store(&snapshot.Progress{})
	var stage atomic.Value
	stage.Store("crawl")
	mgr.SetProgressFunc(func(p snapshot.Progress) {
		last.Store(&p)
	})
	mgr.SetStageFunc(func(s string) {
		if s != "" {
			stage.Store(s)
		}
	})

	isTTY := isTerminal()
	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		var spinnerIdx int
		lastNonTTY := time.Now()
		for {
			select {
			case <-progressDone:
				return
			case <-ticker.C:
				stageStr, _ := stage.Load().(string)
				p := last.Load()
				elapsed := time.Since(startTime).Round(time.Millisecond)
				if isTTY {
					spinner := spinnerFrames[spinnerIdx%len(spinnerFrames)]
					spinnerIdx++
					if stageStr != "crawl" {
						fmt.Fprintf(os.Stderr, "\r\033[K%s %s... | %s", spinner, stageStr, elapsed)
						continue
					}
					failStr := ""
					if p.FailedAttempts > 0 {
						failStr = fmt.Sprintf(" | %d failed", p.FailedAttempts)
					}
					fmt.Fprintf(os.Stderr, "\r\033[K%s Crawling... %d pending | %d folders | %d calls | %s%s",
						spinner, p.Pending, p.Jobs, p.ListCalls, elapsed, failStr)
				} else if crawlProgress > 0 && time.Since(lastNonTTY) >= crawlProgress {
					if stageStr != "crawl" {
						fmt.Fprintf(os.Stderr, "PROGRESS stage=%s elapsed=%s\n", stageStr, elapsed)
					} else {
						fmt.Fprintf(os.Stderr, "PROGRESS pending=%d folders=%d calls=%d failed=%d elapsed=%s\n",
							p.Pending, p.Jobs, p.ListCalls, p.FailedAttempts, elapsed)
					}
					lastNonTTY = time.Now()
				}
			}
		}
	}()

	dbPath, err := mgr.RunCrawl(ctx, client, root, opts)
	close(progressDone)
	if isTTY {
		fmt.Fprintf(os.Stderr, "\r\033[K")
	}

	if err != nil {
		if errors.Is(err, context.Canceled) && !errors.Is(err, snapshot.ErrTooManyErrors) {
			fmt.Fprintln(os.Stderr, "Crawl canceled.")
			return nil
		}
		return err
	}

	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Crawl completed in %s\n", time.Since(startTime).Round(time.Millisecond))

	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil
	}
	defer database.Close()

	meta, err := db.GetCrawlMeta(database)
	if err != nil {
		logger.Warn("failed to read crawl summary", "err", err)
		return nil
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Files: %s\n", humanize.Comma(meta.FileCount))
	fmt.Printf("  Folders: %s\n", humanize.Comma(meta.DirCount))
	fmt.Printf("  Size: %s\n", humanize.IBytes(uint64(meta.TotalSize)))
	fmt.Printf("  List calls: %s\n", humanize.Comma(meta.ListCalls))
	if meta.ErrorCount > 0 {
		fmt.Printf("  Recovered errors: %s\n", humanize.Comma(meta.ErrorCount))
	}

	return nil
}

func isTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
