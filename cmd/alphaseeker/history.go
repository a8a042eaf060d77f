package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var ticker, format string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openLedger()
			if err != nil {
				return err
			}
			recs, err := store.Load(cmd.Context(), strings.TrimSpace(ticker))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, recs)
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "only records of this ticker")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func newTickersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tickers",
		Short: "List tickers with stored analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openLedger()
			if err != nil {
				return err
			}
			list, err := store.Tickers(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range list {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newLatestCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "latest <ticker>",
		Short: "Print the newest analysis of a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openLedger()
			if err != nil {
				return err
			}
			rec, ok, err := store.Latest(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no history for %s", args[0])
			}
			return render(cmd.OutOrStdout(), format, rec)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func render(w io.Writer, format string, v any) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
