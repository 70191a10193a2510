package records

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"blockflow/internal/frames"
	"blockflow/internal/logging"
	"blockflow/internal/services"
)

// reservedParams would collide with files other stages own in a block directory.
var reservedParams = map[string]bool{"Trace": true}

// MergeReport summarizes one block's merge.
type MergeReport struct {
	Files      int
	Rows       int
	Skipped    []string
	Duplicates []int
	Parameters []string
}

// MergeDir concatenates every record file in <blockDir>/<dataSubdir> (file
// name order), sorts the rows by frame and writes one <param>.json per
// parameter into blockDir. Unreadable files are skipped and reported. When a
// frame appears more than once the row read last wins and the frame is
// listed in Duplicates. An existing parameter file, for example from another
// mode measuring a parameter of the same name, is a consistency error and
// nothing is written. The data subdirectory is removed on success.
func MergeDir(blockDir, dataSubdir string, logger *slog.Logger) (MergeReport, error) {
	logger = logging.NewComponentLogger(logger, "merger")
	var report MergeReport
	dataDir := filepath.Join(blockDir, dataSubdir)

	names, err := frames.ListFiles(dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, nil
		}
		return report, services.Wrap(services.ErrStageFatal, "merge", "list records", "Unable to read data directory", err)
	}

	byFrame := make(map[int]Row)
	for _, name := range names {
		rows, err := ReadFile(filepath.Join(dataDir, name))
		if err != nil {
			logger.Warn("skipping unreadable record file",
				logging.String("file", name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "record_unreadable"),
				logging.String(logging.FieldErrorHint, "re-run preprocessing for this frame"),
				logging.String(logging.FieldImpact, "frame missing from merged parameter files"),
			)
			report.Skipped = append(report.Skipped, name)
			continue
		}
		report.Files++
		for _, row := range rows {
			if _, dup := byFrame[row.Frame]; dup {
				report.Duplicates = append(report.Duplicates, row.Frame)
				logger.Warn("duplicate frame in records; later row wins",
					logging.Int("frame", row.Frame),
					logging.String("file", name),
					logging.String(logging.FieldEventType, "record_duplicate"),
					logging.String(logging.FieldErrorHint, "check the preprocessing command writes one record per frame"),
					logging.String(logging.FieldImpact, "earlier values for the frame are discarded"),
				)
			}
			byFrame[row.Frame] = row
		}
	}

	frameOrder := make([]int, 0, len(byFrame))
	for frame := range byFrame {
		frameOrder = append(frameOrder, frame)
	}
	sort.Ints(frameOrder)
	report.Rows = len(frameOrder)

	series := make(map[string][]Point)
	for _, frame := range frameOrder {
		row := byFrame[frame]
		for _, param := range sortedKeys(row.Values) {
			series[param] = append(series[param], Point{Frame: frame, Value: row.Values[param]})
		}
	}
	report.Parameters = sortedKeys(series)

	for _, param := range report.Parameters {
		if err := checkParamName(param); err != nil {
			return report, err
		}
		target := filepath.Join(blockDir, param+ParamExt)
		if _, err := os.Stat(target); err == nil {
			logger.Error("parameter file already exists",
				logging.String("parameter", param),
				logging.String("path", target),
				logging.Alert("parameter_collision"),
				logging.String(logging.FieldEventType, "merge_collision"),
				logging.String(logging.FieldErrorHint, "two modes produce the same parameter name; rename one"),
			)
			return report, services.Wrap(services.ErrConsistency, "merge", "write parameters",
				fmt.Sprintf("Parameter file %s already exists", filepath.Base(target)), nil)
		}
	}

	for _, param := range report.Parameters {
		if err := writeSeries(filepath.Join(blockDir, param+ParamExt), series[param]); err != nil {
			return report, services.Wrap(services.ErrStageFatal, "merge", "write parameters",
				fmt.Sprintf("Unable to write %s%s", param, ParamExt), err)
		}
	}

	if err := os.RemoveAll(dataDir); err != nil {
		return report, services.Wrap(services.ErrStageFatal, "merge", "remove data dir", "Unable to remove merged data directory", err)
	}
	return report, nil
}

func checkParamName(param string) error {
	if param == "" || param == "." || param == ".." || strings.ContainsAny(param, `/\`) || reservedParams[param] {
		return services.Wrap(services.ErrConsistency, "merge", "write parameters",
			fmt.Sprintf("Parameter name %q cannot be used as a file name in a block directory", param), nil)
	}
	return nil
}
