package main

import (
	"fmt"

	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/tui"
	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse a snapshot interactively",
	Long: `Open an interactive TUI to browse the crawled tree, view folder totals
and send files or folders to aria2.`,
	RunE: runTUI,
}

var (
	tuiDB      string
	tuiNoAria2 bool
)

func init() {
	tuiCmd.Flags().StringVarP(&tuiDB, "db", "d", "", "Path to database file (default is latest.db in snapshot.dir)")
	tuiCmd.Flags().BoolVar(&tuiNoAria2, "no-aria2", false, "Disable sending downloads to aria2")
}

func runTUI(cmd *cobra.Command, args []string) error {
	database, err := openSnapshot(tuiDB)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.ApplyReadPragmas(database); err != nil {
		return fmt.Errorf("failed to apply pragmas: %w", err)
	}

	var sender tui.Sender
	if !tuiNoAria2 {
		client := newAria2Client()
		defer client.Close()
		sender = client
		warnMixedContent()
	}

	model := tui.NewModel(database, sender, cfg.Aria2.DownloadPath)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
