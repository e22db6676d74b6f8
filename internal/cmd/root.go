// Package cmd implements the claudebridge command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/claudebridge/config"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "claudebridge",
		Short:        "Bridge websocket clients to Claude CLI sessions",
		Long:         "claudebridge runs Claude CLI sessions on behalf of websocket clients and streams their output back as JSON envelopes.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSchemaCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "claudebridge", Version)
		},
	}
}

// newLogger builds the process logger from the log config.
func newLogger(w io.Writer, c config.LogConfig) (*slog.Logger, error) {
	cfg := config.Config{Log: c}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
