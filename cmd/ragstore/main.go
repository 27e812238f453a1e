// Package main implements the ragstore command: it serves a vector store over
// HTTP and provides client commands against a running server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	serverURL  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ragstore",
		Short: "Vector store for retrieval-augmented generation",
		Long: `ragstore stores embedded documents and answers nearest-neighbour queries.

The serve command runs the HTTP API backed by the configured store
(memory, chroma, chromem or qdrant). The remaining commands are clients
for a running server.`,
		Version:       version,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/ragstore/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:9090", "ragstore server URL")

	cmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newAddCmd(opts),
		newSearchCmd(opts),
		newHealthCmd(opts),
	)
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: provider=%s\n", cfg.VectorStore.ProviderName())
			return nil
		},
	}
}
