package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"blockflow/internal/poslog"
	"blockflow/internal/textutil"
)

type statusRow struct {
	Position     string `json:"position"`
	Stage        string `json:"stage"`
	Status       string `json:"status"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RunID        string `json:"run_id,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var showEvents string
	cmd := &cobra.Command{
		Use:   "status <experiment-dir>",
		Short: "Show the position log of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd, args[0])
			if err != nil {
				return err
			}
			log, err := openPositionLog(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			if showEvents != "" {
				return printEvents(cmd, log, cfg.ExperimentName(), showEvents, asJSON)
			}

			entries, err := log.List(cmd.Context(), cfg.ExperimentName())
			if err != nil {
				return err
			}
			rows := make([]statusRow, len(entries))
			for i, e := range entries {
				rows[i] = statusRow{
					Position:     e.Position,
					Stage:        e.Stage,
					Status:       string(e.Status),
					ErrorKind:    e.ErrorKind,
					ErrorMessage: e.ErrorMessage,
					RunID:        e.RunID,
					UpdatedAt:    e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
				}
			}
			if asJSON {
				return writeJSON(cmd, rows)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No positions recorded for %s\n", cfg.ExperimentName())
				return nil
			}
			colorize := shouldColorize(out)
			table := make([][]string, len(entries))
			counts := map[poslog.Status]int{}
			for i, e := range entries {
				counts[e.Status]++
				detail := ""
				if e.ErrorKind != "" {
					detail = e.ErrorKind + ": " + textutil.Truncate(e.ErrorMessage, 60)
				}
				table[i] = []string{e.Position, e.Stage, renderStatus(e.Status, colorize), humanize.Time(e.UpdatedAt), detail}
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Position", "Stage", "Status", "Updated", "Error"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			var parts []string
			for _, s := range []poslog.Status{poslog.StatusCompleted, poslog.StatusRunning, poslog.StatusFailed, poslog.StatusPending} {
				if counts[s] > 0 {
					parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
				}
			}
			fmt.Fprintf(out, "%s: %s\n", cfg.ExperimentName(), strings.Join(parts, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVar(&showEvents, "events", "", "Show the stage history of one position")
	return cmd
}

func printEvents(cmd *cobra.Command, log *poslog.Log, expt, position string, asJSON bool) error {
	events, err := log.Events(cmd.Context(), expt, position)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd, events)
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = []string{
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Stage,
			renderStatus(e.Status, colorize),
			textutil.Truncate(e.ErrorMessage, 60),
		}
	}
	fmt.Fprintln(out, renderTable([]string{"Time", "Stage", "Status", "Error"}, rows, nil))
	return nil
}
