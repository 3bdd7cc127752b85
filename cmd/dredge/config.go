package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/michaelscutari/dredge/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file, environment and flags merged)",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := cfg
		if shown.API.Password != "" {
			shown.API.Password = "********"
		}
		if shown.Aria2.Token != "" {
			shown.Aria2.Token = "********"
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(shown)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(configPath)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist one setting to the config file",
	Long: "Persist one setting to the config file. Known keys:\n  " +
		strings.Join(config.Keys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
}

// runConfigSet edits the file's own values so environment overrides are not
// written back.
func runConfigSet(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	if err := fileCfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := fileCfg.Validate(); err != nil {
		return err
	}
	if err := fileCfg.Save(configPath); err != nil {
		return err
	}
	fmt.Printf("%s updated in %s\n", args[0], configPath)
	return nil
}
