package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	c.Name.RawData = cleanName(c.Name.RawData)
	c.Name.Analyses = cleanName(c.Name.Analyses)
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGeneral()
	c.normalizeModes()
	c.normalizeLogging()
	return nil
}

// cleanName drops surrounding space and redundant separators, so "expt/"
// and "expt" name the same experiment.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return filepath.Clean(name)
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.RawData, err = resolvePatternPath(c.Paths.RawData); err != nil {
		return fmt.Errorf("paths.raw_data: %w", err)
	}
	if c.Paths.Analyses, err = resolvePatternPath(c.Paths.Analyses); err != nil {
		return fmt.Errorf("paths.analyses: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" && c.Paths.Analyses != "" && c.Name.Analyses != "" {
		c.Paths.LogDir = filepath.Join(c.AnalysesExperimentDir(), ".blockflow", "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

// resolvePatternPath expands the path and treats its last element as a
// regular expression anchored at the start. The first matching directory in
// name order replaces it; without a match the element is kept literally.
func resolvePatternPath(value string) (string, error) {
	expanded, err := expandPath(strings.TrimSpace(value))
	if err != nil || expanded == "" {
		return expanded, err
	}
	root, pattern := filepath.Split(expanded)
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return expanded, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return expanded, nil
	}
	var matches []string
	for _, entry := range entries {
		if entry.IsDir() && re.MatchString(entry.Name()) {
			matches = append(matches, entry.Name())
		}
	}
	if len(matches) == 0 {
		return expanded, nil
	}
	sort.Strings(matches)
	return filepath.Join(root, matches[0]), nil
}

func (c *Config) normalizeGeneral() {
	if c.General.NumProcs == 0 {
		c.General.NumProcs = defaultNumProcs()
	}
	if len(c.General.FrameRange) == 0 {
		c.General.FrameRange = []int{0, defaultFrameStop}
	}
	c.General.PrimaryMode = strings.ToLower(strings.TrimSpace(c.General.PrimaryMode))
	if c.General.PrimaryMode == "" {
		c.General.PrimaryMode = defaultPrimaryMode
	}
}

func (c *Config) normalizeModes() {
	if len(c.Modes) == 0 {
		return
	}
	normalized := make(map[string]Mode, len(c.Modes))
	for name, mode := range c.Modes {
		key := strings.ToLower(strings.TrimSpace(name))
		mode.Kind = strings.ToLower(strings.TrimSpace(mode.Kind))
		if mode.Kind == "" {
			mode.Kind = defaultModeKind
		}
		mode.Pattern = strings.TrimSpace(mode.Pattern)
		normalized[key] = mode
	}
	c.Modes = normalized
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
