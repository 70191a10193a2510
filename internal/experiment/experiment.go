// Package experiment discovers the positions of an experiment from the
// directories present on disk.
package experiment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"

	"blockflow/internal/services"
)

// Positions returns the subdirectories of dir whose names match any of the
// patterns, matched from the start of the name, sorted and deduplicated.
func Positions(dir string, patterns []string) ([]string, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "discover", "compile position pattern",
				fmt.Sprintf("Invalid position pattern %q", p), err)
		}
		compiled = append(compiled, re)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "discover", "list positions",
				fmt.Sprintf("Experiment directory %s does not exist", dir), err)
		}
		return nil, fmt.Errorf("list positions: %w", err)
	}

	var positions []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		for _, re := range compiled {
			if re.MatchString(entry.Name()) {
				positions = append(positions, entry.Name())
				break
			}
		}
	}
	sort.Strings(positions)
	return positions, nil
}
