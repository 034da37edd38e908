// Package cli implements the CLI adapter for revp.
// This package provides Cobra commands that delegate to the app layer.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"revp/internal/app"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Execute runs the CLI with build-time version information.
func Execute(version, commit, date string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		Commit = commit
	}
	if date != "" {
		BuildDate = date
	}

	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the root command for the revp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "revp",
		Short: "revp - label-driven route reconciliation for Caddy",
		Long: `revp keeps a Caddy server's route collection in sync with the containers
running across your Docker hosts.

It scans container labels over SSH, merges them with declaratively
configured routes, and converges the proxy's live configuration towards
that desired state without touching routes it does not manage.`,
	}

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newStartCmd creates the start command.
func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the reconciliation daemon",
		Long:  `Start the reconciliation loop and the operator API server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(context.Background(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

// newCheckCmd creates the check command.
func newCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and connectivity",
		Long: `Check that the configuration parses, the proxy admin API is reachable
and the host inventory and static route files load, without starting the
daemon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Check(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("revp %s\n", Version)
			cmd.Printf("Commit: %s\n", Commit)
			cmd.Printf("Build Date: %s\n", BuildDate)
		},
	}
}
