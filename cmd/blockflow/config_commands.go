package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"blockflow/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Parameter file utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init <experiment-dir>",
		Short: "Write a sample params.toml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve directory: %w", err)
			}
			target := filepath.Join(dir, config.ParamsFileName)

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("parameter file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check parameter path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample parameters: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample parameters to %s\n", target)
			fmt.Fprintln(out, "Set [name] and [paths] and the mode commands before running blockflow.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing parameter file")
	return cmd
}

// newConfigValidateCommand checks a parameter file without writing defaults.
func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <experiment-dir>",
		Short: "Validate the parameter file of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve directory: %w", err)
			}
			var path string
			for _, name := range []string{config.ParamsFileName, config.LegacyParamsFileName} {
				candidate := filepath.Join(dir, name)
				if _, err := os.Stat(candidate); err == nil {
					path = candidate
					break
				}
			}
			if path == "" {
				return fmt.Errorf("no %s or %s in %s", config.ParamsFileName, config.LegacyParamsFileName, dir)
			}
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Parameter file: %s\n", path)
			fmt.Fprintf(out, "Raw experiment: %s\n", cfg.RawExperimentDir())
			fmt.Fprintf(out, "Analyses experiment: %s\n", cfg.AnalysesExperimentDir())
			fmt.Fprintf(out, "Active modes: %s\n", strings.Join(cfg.ActiveModes(), ", "))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <experiment-dir>",
		Short: "Print the effective parameters as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, cfg)
		},
	}
}
