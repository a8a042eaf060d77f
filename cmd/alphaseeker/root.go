package main

import (
	"os"

	"alphaseeker/internal/config"
	"alphaseeker/internal/store/ledger"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "alphaseeker",
		Short:         "AlphaSeeker value-investing analysis server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	def := os.Getenv("ALPHASEEKER_CONFIG")
	if def == "" {
		def = defaultConfigPath
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", def, "config file (missing file means defaults + env)")

	root.AddCommand(newServeCmd(opts), newHistoryCmd(opts), newTickersCmd(opts), newLatestCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func (o *rootOptions) openLedger() (*ledger.Store, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.Storage.HistoryPath)
}
