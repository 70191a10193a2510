package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"blockflow/internal/poslog"
	"blockflow/internal/runlock"
	"blockflow/internal/staging"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var partial bool
	var dryRun bool
	var resetLog bool
	cmd := &cobra.Command{
		Use:   "clean <experiment-dir>",
		Short: "Remove leftover temp workspaces",
		Long: "Removes temp workspaces left by interrupted runs. --partial also resets positions whose " +
			"reorganization stopped half way (temp and block directories both present), which otherwise " +
			"refuse to resume. --log deletes the position log, for example after a schema change.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			analysesDir := cfg.AnalysesExperimentDir()

			workspaces, err := staging.ListWorkspaces(analysesDir)
			if err != nil {
				return err
			}
			if dryRun {
				if len(workspaces) == 0 {
					fmt.Fprintln(out, "No temp workspaces")
					return nil
				}
				rows := make([][]string, len(workspaces))
				for i, ws := range workspaces {
					rows[i] = []string{ws.Position, humanize.Bytes(uint64(ws.Size)), humanize.Time(ws.ModTime), yesNo(ws.Partial)}
				}
				fmt.Fprintln(out, renderTable([]string{"Position", "Size", "Modified", "Partial"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
				return nil
			}

			lock, err := runlock.Acquire(cfg.StateDir())
			if err != nil {
				return err
			}
			defer lock.Release()

			logger, _, err := ctx.logger(cfg, "")
			if err != nil {
				return err
			}

			removed := 0
			failed := 0
			result := staging.CleanStale(cmd.Context(), analysesDir, olderThan, logger)
			removed += len(result.Removed)
			failed += len(result.Errors)
			if partial {
				result = staging.ResetPartial(cmd.Context(), analysesDir, logger)
				removed += len(result.Removed)
				failed += len(result.Errors)
			}
			if resetLog {
				path := filepath.Join(cfg.StateDir(), poslog.FileName)
				for _, p := range []string{path, path + "-wal", path + "-shm"} {
					if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
						return fmt.Errorf("remove position log: %w", err)
					}
				}
				fmt.Fprintf(out, "Removed position log %s\n", path)
			}

			fmt.Fprintf(out, "Cleaned %d workspace(s)\n", removed)
			if failed > 0 {
				return fmt.Errorf("%d workspace(s) could not be removed", failed)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only remove temp workspaces older than this")
	cmd.Flags().BoolVar(&partial, "partial", false, "Reset positions with both temp and block directories")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "List temp workspaces without removing anything")
	cmd.Flags().BoolVar(&resetLog, "log", false, "Delete the position log")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
