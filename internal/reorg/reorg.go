// Package reorg moves per-frame outputs out of a position's temp workspace
// into the block directory that owns each frame.
package reorg

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"blockflow/internal/fileutil"
	"blockflow/internal/frames"
	"blockflow/internal/logging"
	"blockflow/internal/partition"
	"blockflow/internal/services"
)

// Target is a block and the directory it materializes as.
type Target struct {
	Block partition.Block
	Dir   string
}

// Spec selects the files of one artifact type and names the per-block
// subdirectory they move into.
type Spec struct {
	Pattern frames.Pattern
	Subdir  string
}

// Report summarizes a reorganization.
type Report struct {
	Moved   map[string]int
	Skipped []string
}

// Total returns the number of moved files.
func (r Report) Total() int {
	total := 0
	for _, n := range r.Moved {
		total += n
	}
	return total
}

type move struct {
	src string
	dst string
	key string
}

// Run assigns every file in tempDir matching a spec to the target whose
// window contains its frame index, then moves them. Targets must be ordered
// and non-overlapping. Every assignment is planned before any file moves: a
// frame outside all targets is a consistency error and leaves tempDir
// untouched. Names whose index cannot be parsed are skipped and reported.
// Each target receives every spec's subdirectory even when it ends up empty.
func Run(tempDir string, targets []Target, specs []Spec, logger *slog.Logger) (Report, error) {
	logger = logging.NewComponentLogger(logger, "reorganizer")
	report := Report{Moved: make(map[string]int, len(specs))}

	names, err := frames.ListFiles(tempDir)
	if err != nil {
		return report, services.Wrap(services.ErrStageFatal, "reorganize", "list temp", "Unable to read temp workspace", err)
	}

	blocks := make([]partition.Block, len(targets))
	for i, t := range targets {
		blocks[i] = t.Block
	}

	claimed := make(map[string]bool, len(names))
	unparseable := make(map[string]string)
	var unparseableOrder []string
	var plan []move
	var outside []string
	for _, spec := range specs {
		report.Moved[spec.Subdir] = 0
		result := spec.Pattern.Match(names, frames.Unbounded)
		for _, name := range result.Skipped {
			if _, seen := unparseable[name]; !seen {
				unparseable[name] = spec.Pattern.String()
				unparseableOrder = append(unparseableOrder, name)
			}
		}
		for _, frame := range result.Frames {
			if claimed[frame.Name] {
				continue
			}
			claimed[frame.Name] = true
			i, ok := partition.Find(blocks, frame.Index)
			if !ok {
				outside = append(outside, fmt.Sprintf("%s (frame %d)", frame.Name, frame.Index))
				continue
			}
			plan = append(plan, move{
				src: filepath.Join(tempDir, frame.Name),
				dst: filepath.Join(targets[i].Dir, spec.Subdir, frame.Name),
				key: spec.Subdir,
			})
		}
	}

	// A name only counts as skipped when no spec claimed it.
	for _, name := range unparseableOrder {
		if claimed[name] {
			continue
		}
		logger.Warn("skipping file with unparseable frame index",
			logging.String("file", name),
			logging.String("pattern", unparseable[name]),
			logging.String(logging.FieldEventType, "frame_index_unparseable"),
			logging.String(logging.FieldErrorHint, "rename or remove the file"),
			logging.String(logging.FieldImpact, "file stays in the temp workspace"),
		)
		report.Skipped = append(report.Skipped, name)
	}

	if len(outside) > 0 {
		sort.Strings(outside)
		logger.Error("files fall outside every block",
			logging.Int("count", len(outside)),
			logging.String("files", strings.Join(outside, ", ")),
			logging.Alert("block_mismatch"),
			logging.String(logging.FieldEventType, "reorganize_inconsistent"),
			logging.String(logging.FieldErrorHint, "frame window and block partition disagree; report this as a defect"),
		)
		return report, services.Wrap(services.ErrConsistency, "reorganize", "assign blocks",
			fmt.Sprintf("%d file(s) fall outside every block: %s", len(outside), strings.Join(outside, ", ")), nil)
	}

	for _, target := range targets {
		for _, spec := range specs {
			if err := os.MkdirAll(filepath.Join(target.Dir, spec.Subdir), 0o755); err != nil {
				return report, services.Wrap(services.ErrStageFatal, "reorganize", "create block dir", "Unable to create block subdirectory", err)
			}
		}
	}

	for _, m := range plan {
		if err := fileutil.Move(m.src, m.dst); err != nil {
			return report, services.Wrap(services.ErrStageFatal, "reorganize", "move file", "Unable to move file into block", err)
		}
		report.Moved[m.key]++
	}

	logger.Debug("temp workspace reorganized",
		logging.Int("moved", report.Total()),
		logging.Int("skipped", len(report.Skipped)),
		logging.Int("blocks", len(targets)),
	)
	return report, nil
}
