// Package cmd implements wardctl, the operator CLI for schema migrations,
// reference sequences and service tokens.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jwalitptl/ward-api/internal/config"
)

type options struct {
	configDir string
}

func (o *options) load() (*config.Config, error) {
	if o.configDir != "" {
		return config.LoadConfig(o.configDir)
	}
	return config.LoadConfig()
}

// NewRootCommand builds the command tree. Each call returns a fresh tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "wardctl",
		Short:         "Operate the ward admissions service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configDir, "config-dir", "c", "", "directory holding config.yml")

	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newTokenCommand(opts))
	root.AddCommand(newSequenceCommand(opts))
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}
