// Package summary reports per-parameter statistics over the merged block
// outputs of a position.
package summary

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"blockflow/internal/layout"
	"blockflow/internal/records"
	"blockflow/internal/services"
)

// Stats describes one parameter inside one block.
type Stats struct {
	Parameter string
	Block     string
	Rows      int
	Numeric   int
	Mean      float64
	StdDev    float64
	Median    float64
	Min       float64
	Max       float64
}

// Report is the summary of one position.
type Report struct {
	Position string
	Blocks   int
	Stats    []Stats
	// Unreadable lists parameter files that could not be decoded.
	Unreadable []string
}

// Parameters returns the distinct parameter names in the report, sorted.
func (r Report) Parameters() []string {
	seen := make(map[string]struct{})
	for _, s := range r.Stats {
		seen[s.Parameter] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Position summarizes every block of p. A position without blocks returns
// ErrNotFound.
func Position(p layout.Position) (Report, error) {
	refs, err := layout.ListBlocks(p.BlocksDir())
	if err != nil {
		return Report{}, err
	}
	if len(refs) == 0 {
		return Report{}, services.Wrap(services.ErrNotFound, "summary", "list blocks",
			fmt.Sprintf("Position %s has no blocks", p.Name), nil)
	}
	report := Report{Position: p.Name, Blocks: len(refs)}
	for _, ref := range refs {
		stats, unreadable, err := Block(ref.Dir)
		if err != nil {
			return report, err
		}
		report.Stats = append(report.Stats, stats...)
		report.Unreadable = append(report.Unreadable, unreadable...)
	}
	return report, nil
}

// Block computes statistics for every merged parameter file in blockDir.
// The trace file is not a parameter and is ignored.
func Block(blockDir string) ([]Stats, []string, error) {
	entries, err := os.ReadDir(blockDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read block: %w", err)
	}
	name := filepath.Base(blockDir)
	var stats []Stats
	var unreadable []string
	for _, entry := range entries {
		fileName := entry.Name()
		if !entry.Type().IsRegular() || filepath.Ext(fileName) != records.ParamExt || fileName == layout.TraceFileName {
			continue
		}
		path := filepath.Join(blockDir, fileName)
		points, err := records.ReadSeries(path)
		if err != nil {
			if errors.Is(err, services.ErrParse) {
				unreadable = append(unreadable, path)
				continue
			}
			return nil, nil, err
		}
		s := Compute(points)
		s.Parameter = strings.TrimSuffix(fileName, records.ParamExt)
		s.Block = name
		stats = append(stats, s)
	}
	return stats, unreadable, nil
}

// Compute derives statistics from a series. Non-numeric values count as rows
// but not toward the numeric figures, which are NaN when nothing is numeric.
func Compute(points []records.Point) Stats {
	values := records.Floats(points)
	s := Stats{Rows: len(points), Numeric: len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		s.Mean, s.StdDev, s.Median, s.Min, s.Max = nan, nan, nan, nan, nan
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	return s
}
