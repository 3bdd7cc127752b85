package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var aria2Cmd = &cobra.Command{
	Use:   "aria2",
	Short: "Talk to the configured aria2 RPC endpoint",
}

var aria2VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Check the aria2 connection and print its version",
	RunE:  runAria2Version,
}

func init() {
	aria2Cmd.AddCommand(aria2VersionCmd)
}

func runAria2Version(cmd *cobra.Command, args []string) error {
	client := newAria2Client()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	v, err := client.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("aria2 at %s: %w", client.Endpoint(), err)
	}
	fmt.Printf("aria2 %s at %s\n", v.Version, client.Endpoint())
	if len(v.EnabledFeatures) > 0 {
		fmt.Printf("Features: %s\n", strings.Join(v.EnabledFeatures, ", "))
	}
	warnMixedContent()
	return nil
}
