package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"blockflow/internal/logging"
	"blockflow/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var position string
	var file string

	cmd := &cobra.Command{
		Use:   "logs <experiment-dir>",
		Short: "Print the most recent run log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd, args[0])
			if err != nil {
				return err
			}
			path := strings.TrimSpace(file)
			if path == "" {
				path, err = logs.Latest(cfg.Paths.LogDir, logging.RunLogPattern)
				if err != nil {
					return err
				}
			} else if !filepath.IsAbs(path) {
				path = filepath.Join(cfg.Paths.LogDir, path)
			}

			opts := logs.TailOptions{Offset: -1, Limit: lines, Match: strings.TrimSpace(position)}
			if lines <= 0 {
				opts.Offset = 0
			}
			out := cmd.OutOrStdout()
			printed := false
			for {
				res, err := logs.Tail(cmd.Context(), path, opts)
				if err != nil {
					if errors.Is(err, cmd.Context().Err()) {
						return nil
					}
					return fmt.Errorf("tail %s: %w", path, err)
				}
				for _, line := range res.Lines {
					fmt.Fprintln(out, line)
					printed = true
				}
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				if cmd.Context().Err() != nil {
					return nil
				}
				opts = logs.TailOptions{Offset: res.Offset, Match: opts.Match, Follow: true, Wait: time.Second}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines as they are written")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().StringVarP(&position, "position", "p", "", "Only show lines mentioning this position")
	cmd.Flags().StringVar(&file, "file", "", "Read this log file instead of the most recent one")
	return cmd
}
