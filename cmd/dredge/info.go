package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/michaelscutari/dredge/internal/db"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display crawl metadata",
	Long:  `Print metadata about a snapshot including timestamps, statistics and recovered listing errors.`,
	RunE:  runInfo,
}

var (
	infoDB     string
	infoErrors int
)

func init() {
	infoCmd.Flags().StringVarP(&infoDB, "db", "d", "", "Path to database file (default is latest.db in snapshot.dir)")
	infoCmd.Flags().IntVar(&infoErrors, "errors", 10, "Number of recovered errors to list")
}

func runInfo(cmd *cobra.Command, args []string) error {
	database, err := openSnapshot(infoDB)
	if err != nil {
		return err
	}
	defer database.Close()

	meta, err := db.GetCrawlMeta(database)
	if err != nil {
		return fmt.Errorf("failed to read crawl metadata: %w", err)
	}

	fmt.Printf("Crawl Information\n")
	fmt.Printf("=================\n\n")
	fmt.Printf("Run:          %s\n", meta.RunID)
	fmt.Printf("Root Path:    %s\n", meta.RootPath)
	if meta.RootID != "" {
		fmt.Printf("Root ID:      %s\n", meta.RootID)
	}
	fmt.Printf("Start Time:   %s\n", meta.StartTime.Format(time.RFC3339))
	if !meta.EndTime.IsZero() {
		fmt.Printf("End Time:     %s\n", meta.EndTime.Format(time.RFC3339))
		fmt.Printf("Duration:     %s\n", meta.EndTime.Sub(meta.StartTime).Round(time.Millisecond))
	}
	fmt.Printf("Concurrency:  %d\n", meta.Concurrency)
	fmt.Printf("Retries:      %d\n", meta.RetryTimes)
	fmt.Printf("Recursive:    %t\n", meta.Recursive)

	fmt.Printf("\nStatistics\n")
	fmt.Printf("----------\n")
	fmt.Printf("Files:        %s\n", humanize.Comma(meta.FileCount))
	fmt.Printf("Folders:      %s\n", humanize.Comma(meta.DirCount))
	fmt.Printf("Size:         %s\n", humanize.IBytes(uint64(meta.TotalSize)))
	fmt.Printf("List Calls:   %s\n", humanize.Comma(meta.ListCalls))
	if meta.ErrorCount == 0 {
		return nil
	}
	fmt.Printf("Errors:       %s\n", humanize.Comma(meta.ErrorCount))

	if infoErrors <= 0 {
		return nil
	}
	errs, err := db.ListErrors(database, infoErrors)
	if err != nil {
		return fmt.Errorf("failed to read errors: %w", err)
	}
	fmt.Printf("\nRecovered Errors\n")
	fmt.Printf("----------------\n")
	for _, e := range errs {
		fmt.Printf("%s (attempt %d): %s\n", e.Path, e.Attempt, e.Message)
	}

	return nil
}
