// Command deskagent runs the local desktop automation agent: a
// perception-decision-action loop that drives the host GUI toward a
// user-stated goal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "deskagent",
		Short:         "Local desktop automation agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (optional)")

	root.AddCommand(
		newRunCmd(&configPath),
		newServeCmd(&configPath),
		newSkillsCmd(&configPath),
		newSessionsCmd(&configPath),
	)
	return root
}

// newLogger builds the process logger: JSON to stderr in production,
// text when stderr is a terminal.
func newLogger() *slog.Logger {
	var handler slog.Handler
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		handler = slog.NewTextHandler(os.Stderr, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	return slog.New(handler)
}
