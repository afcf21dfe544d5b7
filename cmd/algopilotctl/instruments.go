package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/algopilot/internal/adapter/driven/smartapi"
	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

func newInstrumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instruments",
		Short: "Query the broker instrument master",
	}

	cmd.AddCommand(newInstrumentsFetchCmd())

	return cmd
}

func newInstrumentsFetchCmd() *cobra.Command {
	var (
		url      string
		exchange string
		symbol   string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the instrument master and print matching rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instruments, err := smartapi.NewInstrumentSource(url).FetchInstruments(cmd.Context())
			if err != nil {
				return err
			}

			matched := filterInstruments(instruments, exchange, symbol)
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(matched)
			}

			for _, in := range matched {
				_, _ = fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", in.Exchange, in.Token, in.Symbol, in.Name)
			}
			_, err = fmt.Fprintf(out, "%d of %d instruments\n", len(matched), len(instruments))
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", smartapi.DefaultInstrumentURL, "instrument master URL")
	cmd.Flags().StringVar(&exchange, "exchange", "", "only rows on this exchange segment (e.g. NSE)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "only rows whose symbol contains this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func filterInstruments(all []model.Instrument, exchange, symbol string) []model.Instrument {
	symbol = strings.ToUpper(symbol)
	out := make([]model.Instrument, 0, len(all))
	for _, in := range all {
		if exchange != "" && !strings.EqualFold(in.Exchange, exchange) {
			continue
		}
		if symbol != "" && !strings.Contains(strings.ToUpper(in.Symbol), symbol) {
			continue
		}
		out = append(out, in)
	}
	return out
}
