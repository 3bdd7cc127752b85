package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the snapshot non-interactively",
	Long:  `Query a crawl snapshot and output results for scripting.`,
	RunE:  runQuery,
}

var (
	queryDB    string
	queryPath  string
	querySort  string
	queryLimit int
	queryURLs  bool
)

func init() {
	queryCmd.Flags().StringVarP(&queryDB, "db", "d", "", "Path to database file (default is latest.db in snapshot.dir)")
	queryCmd.Flags().StringVarP(&queryPath, "path", "p", "", "Folder path to query")
	queryCmd.Flags().StringVarP(&querySort, "sort", "s", "size", "Sort by: size, name, files, dirs")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 20, "Maximum number of results")
	queryCmd.Flags().BoolVar(&queryURLs, "urls", false, "Print download URLs of every file under the path instead")
}

func runQuery(cmd *cobra.Command, args []string) error {
	database, err := openSnapshot(queryDB)
	if err != nil {
		return err
	}
	defer database.Close()

	if queryPath == "" {
		queryPath, err = db.RootPath(database)
		if err != nil {
			return fmt.Errorf("failed to get root path: %w", err)
		}
	}

	if queryURLs {
		files, err := db.LoadFiles(database, queryPath)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		for _, f := range files {
			fmt.Println(f.DownloadURL)
		}
		return nil
	}

	entries, err := db.LoadChildren(database, queryPath, querySort, queryLimit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SIZE\tFILES\tDIRS\tNAME\n")
	for _, e := range entries {
		size := humanize.IBytes(uint64(e.TotalSize))
		name := e.Name
		if e.Kind == entry.KindDir {
			name += "/"
			if !e.Listed {
				size = "?"
			}
		} else if !e.HasSize {
			size = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			size,
			humanize.Comma(e.TotalFiles),
			humanize.Comma(e.TotalDirs),
			name,
		)
	}
	w.Flush()

	return nil
}
