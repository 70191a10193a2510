package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"blockflow/internal/experiment"
	"blockflow/internal/layout"
	"blockflow/internal/services"
	"blockflow/internal/summary"
)

type summaryRow struct {
	Position  string   `json:"position"`
	Block     string   `json:"block"`
	Parameter string   `json:"parameter"`
	Rows      int      `json:"rows"`
	Numeric   int      `json:"numeric"`
	Mean      *float64 `json:"mean,omitempty"`
	StdDev    *float64 `json:"stddev,omitempty"`
	Median    *float64 `json:"median,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var parameter string
	var positions []string
	cmd := &cobra.Command{
		Use:   "summary <experiment-dir>",
		Short: "Per-parameter statistics of every block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd, args[0])
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				positions, err = experiment.Positions(cfg.AnalysesExperimentDir(), cfg.Positions)
				if err != nil {
					return err
				}
			}

			var rows []summaryRow
			for _, pos := range positions {
				p := layout.ForPosition(cfg.RawExperimentDir(), cfg.AnalysesExperimentDir(), pos)
				report, err := summary.Position(p)
				if err != nil {
					if errors.Is(err, services.ErrNotFound) {
						continue
					}
					return fmt.Errorf("summarize %s: %w", pos, err)
				}
				for _, path := range report.Unreadable {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: unreadable parameter file %s\n", path)
				}
				for _, s := range report.Stats {
					if parameter != "" && s.Parameter != parameter {
						continue
					}
					rows = append(rows, summaryRow{
						Position:  pos,
						Block:     s.Block,
						Parameter: s.Parameter,
						Rows:      s.Rows,
						Numeric:   s.Numeric,
						Mean:      finite(s.Mean),
						StdDev:    finite(s.StdDev),
						Median:    finite(s.Median),
						Min:       finite(s.Min),
						Max:       finite(s.Max),
					})
				}
			}

			if asJSON {
				return writeJSON(cmd, rows)
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No merged blocks found")
				return nil
			}
			table := make([][]string, len(rows))
			for i, r := range rows {
				table[i] = []string{
					r.Position, r.Block, r.Parameter,
					strconv.Itoa(r.Rows),
					formatStat(r.Mean), formatStat(r.StdDev), formatStat(r.Median),
					formatStat(r.Min), formatStat(r.Max),
				}
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Position", "Block", "Parameter", "Rows", "Mean", "StdDev", "Median", "Min", "Max"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVar(&parameter, "parameter", "", "Only show this parameter")
	cmd.Flags().StringSliceVarP(&positions, "position", "p", nil, "Only summarize these positions")
	return cmd
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatStat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}
