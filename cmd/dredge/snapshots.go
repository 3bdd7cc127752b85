package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/michaelscutari/dredge/internal/snapshot"
	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored snapshots",
	RunE:  runSnapshots,
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	mgr := snapshot.NewManager(cfg.Snapshot.Dir, cfg.Snapshot.Retention)
	paths, err := mgr.ListSnapshots()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No snapshots yet.")
			return nil
		}
		return err
	}
	latest, _ := mgr.GetLatest()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\tSNAPSHOT\tSIZE\tMODIFIED\n")
	for i := len(paths) - 1; i >= 0; i-- {
		p := paths[i]
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		mark := ""
		if p == latest {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, filepath.Base(p), humanize.IBytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))
	}
	return w.Flush()
}
