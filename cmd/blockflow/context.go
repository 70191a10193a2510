package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"blockflow/internal/config"
	"blockflow/internal/logging"
	"blockflow/internal/poslog"
)

type commandContext struct {
	logLevel  *string
	logFormat *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configNew  bool
	configErr  error
}

func newCommandContext(logLevel, logFormat *string) *commandContext {
	return &commandContext{
		logLevel:  logLevel,
		logFormat: logFormat,
	}
}

// ensureConfig loads the parameter file of inputDir once per invocation.
// A missing file is replaced by defaults and reported on stderr.
func (c *commandContext) ensureConfig(cmd *cobra.Command, inputDir string) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, existed, err := config.Load(inputDir)
		if err != nil {
			c.configErr = fmt.Errorf("load parameters: %w", err)
			return
		}
		if level := strings.TrimSpace(deref(c.logLevel)); level != "" {
			cfg.Logging.Level = level
		}
		if format := strings.TrimSpace(deref(c.logFormat)); format != "" {
			cfg.Logging.Format = format
		}
		if !existed {
			fmt.Fprintf(cmd.ErrOrStderr(), "No parameter file found; wrote defaults to %s\n", path)
		}
		c.config = cfg
		c.configPath = path
		c.configNew = !existed
	})
	return c.config, c.configErr
}

// logger builds the run logger. The per-run log file lands in the configured
// log directory; console-only logging is used when label is empty.
func (c *commandContext) logger(cfg *config.Config, label string) (*slog.Logger, string, error) {
	if label == "" {
		logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		return logger, "", err
	}
	logger, path, err := logging.NewFromConfig(cfg, label)
	if err != nil {
		return nil, "", fmt.Errorf("init logging: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     cfg.Paths.LogDir,
		Pattern: logging.RunLogPattern,
		Exclude: []string{path},
	})
	return logger, path, nil
}

func openPositionLog(cfg *config.Config) (*poslog.Log, error) {
	log, err := poslog.Open(filepath.Join(cfg.StateDir(), poslog.FileName))
	if err != nil {
		return nil, fmt.Errorf("open position log: %w", err)
	}
	return log, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
