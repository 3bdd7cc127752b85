package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/pathutil"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Send a file or every file under a folder to aria2",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var (
	getDB       string
	getDir      string
	getKeepTree bool
	getDryRun   bool
)

func init() {
	getCmd.Flags().StringVarP(&getDB, "db", "d", "", "Path to database file (default is latest.db in snapshot.dir)")
	getCmd.Flags().StringVar(&getDir, "dir", "", "Download directory on the aria2 host (overrides aria2.download_path)")
	getCmd.Flags().BoolVar(&getKeepTree, "keep-tree", false, "Recreate the folder structure below the download directory")
	getCmd.Flags().BoolVar(&getDryRun, "dry-run", false, "Print what would be sent without contacting aria2")
}

func runGet(cmd *cobra.Command, args []string) error {
	database, err := openSnapshot(getDB)
	if err != nil {
		return err
	}
	defer database.Close()

	files, err := db.LoadFiles(database, args[0])
	if err != nil {
		return fmt.Errorf("failed to load files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files under %s", args[0])
	}

	dir := cfg.Aria2.DownloadPath
	if cmd.Flags().Changed("dir") {
		dir = getDir
	}
	base := pathutil.Parent(pathutil.Normalize(args[0]))

	var total int64
	for _, f := range files {
		total += f.RawSizeBytes
	}
	fmt.Printf("Sending %s files (%s) to aria2\n", humanize.Comma(int64(len(files))), humanize.IBytes(uint64(total)))

	if getDryRun {
		for _, f := range files {
			fmt.Printf("%s -> %s\n", f.DownloadURL, targetDir(dir, base, f.ResolvedPath))
		}
		return nil
	}

	warnMixedContent()
	client := newAria2Client()
	defer client.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for i, f := range files {
		gid, err := client.AddURI(ctx, f.DownloadURL, targetDir(dir, base, f.ResolvedPath))
		if err != nil {
			return fmt.Errorf("sent %d of %d files: %w", i, len(files), err)
		}
		logger.Debug("queued download", "path", f.ResolvedPath, "gid", gid)
	}
	fmt.Printf("Queued %d downloads\n", len(files))
	return nil
}

// targetDir places a file below dir, keeping its folders relative to base
// when --keep-tree is set.
func targetDir(dir, base, filePath string) string {
	if !getKeepTree {
		return dir
	}
	rel := strings.TrimPrefix(pathutil.Parent(filePath), base)
	if rel == "" {
		return dir
	}
	return filepath.Join(dir, filepath.FromSlash(rel))
}
