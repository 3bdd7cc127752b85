package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/michaelscutari/dredge/internal/aria2"
	"github.com/michaelscutari/dredge/internal/config"
	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/logging"
	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

var version = "0.1.0"

var (
	configPath string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dredge",
	Short: "Crawl a cloud-drive index and browse or download its contents",
	Long: `dredge walks a paginated drive index, stores the folder tree in a
SQLite snapshot, and lets you browse it or hand files to aria2.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(aria2Cmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		p, err := config.Path()
		if err != nil {
			return err
		}
		configPath = p
	}

	var err error
	cfg, err = config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = logging.New("dredge", cfg.LogLevel)
	return nil
}

// snapshotPath returns flagValue, or the latest snapshot in the configured
// snapshot directory.
func snapshotPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(cfg.Snapshot.Dir, "latest.db")
}

// openSnapshot opens an existing snapshot and checks its schema version.
func openSnapshot(flagValue string) (*sql.DB, error) {
	path := snapshotPath(flagValue)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no snapshot at %s (run `dredge crawl` first): %w", path, err)
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.CheckSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return database, nil
}

func newAria2Client() *aria2.Client {
	return aria2.NewClient(aria2.Options{
		Host:   cfg.Aria2.Host,
		Port:   cfg.Aria2.Port,
		Secure: cfg.Aria2.Secure,
		Path:   cfg.Aria2.Path,
		Token:  cfg.Aria2.Token,
		Logger: logger,
	})
}

func warnMixedContent() {
	if cfg.MixedContentWarning() {
		logger.Warn("index is served over https but aria2 RPC is not secure; set aria2.secure if your aria2 has TLS enabled")
	}
}
