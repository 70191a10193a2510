package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateNames(); err != nil {
		return err
	}
	if err := c.validatePositions(); err != nil {
		return err
	}
	if err := c.validateGeneral(); err != nil {
		return err
	}
	if err := c.validateModes(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateNames() error {
	if c.Name.RawData == "" {
		return errors.New("name.raw_data must be set")
	}
	if c.Name.Analyses == "" {
		return errors.New("name.analyses must be set")
	}
	for key, name := range map[string]string{"name.raw_data": c.Name.RawData, "name.analyses": c.Name.Analyses} {
		if name == "." || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("%s must name a directory below its data root, got %q", key, name)
		}
	}
	if c.Paths.RawData == "" || c.Paths.Analyses == "" {
		return errors.New("paths.raw_data and paths.analyses must be set")
	}
	return nil
}

func (c *Config) validatePositions() error {
	if len(c.Positions) == 0 {
		return errors.New("positions must list at least one pattern")
	}
	for _, pattern := range c.Positions {
		if strings.TrimSpace(pattern) == "" {
			return errors.New("positions must not contain empty patterns")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("positions: invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateGeneral() error {
	g := c.General
	if g.WriteMode != 0 && g.WriteMode != 1 {
		return fmt.Errorf("general.write_mode must be 0 (overwrite) or 1 (resume), got %d", g.WriteMode)
	}
	if g.NumProcs < 1 {
		return fmt.Errorf("general.num_procs must be at least 1, got %d", g.NumProcs)
	}
	if len(g.FrameRange) != 2 {
		return fmt.Errorf("general.frame_range must be [start, stop], got %v", g.FrameRange)
	}
	if g.FrameRange[0] < 0 || g.FrameRange[1] <= g.FrameRange[0] {
		return fmt.Errorf("general.frame_range must satisfy 0 <= start < stop, got %v", g.FrameRange)
	}
	if g.BlockSize <= 0 {
		return fmt.Errorf("general.block_size must be positive, got %d", g.BlockSize)
	}
	return nil
}

func (c *Config) validateModes() error {
	if len(c.ActiveModes()) == 0 {
		return errors.New("at least one mode must be enabled")
	}
	primary, ok := c.Modes[c.General.PrimaryMode]
	if !ok || !primary.IsEnabled() {
		return fmt.Errorf("general.primary_mode %q must name an enabled mode", c.General.PrimaryMode)
	}
	for name, mode := range c.Modes {
		if !mode.IsEnabled() {
			continue
		}
		if mode.Pattern == "" {
			return fmt.Errorf("modes.%s.pattern must be set", name)
		}
		if n := strings.Count(mode.Pattern, "{frame}"); n != 1 {
			return fmt.Errorf("modes.%s.pattern must contain exactly one {frame} placeholder, found %d", name, n)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
