// Package records reads and writes per-frame record files and merges a
// block's records into one file per parameter.
//
// A record file is a JSON array of rows:
//
//	[{"frame": 12, "values": {"area": 41.5, "label": 3}}]
//
// A merged parameter file <param>.json holds that parameter for every frame
// of the block in ascending frame order:
//
//	[{"frame": 12, "value": 41.5}]
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"blockflow/internal/services"
)

// ParamExt is the extension of merged parameter files.
const ParamExt = ".json"

// Row holds every parameter measured for one frame.
type Row struct {
	Frame  int                        `json:"frame"`
	Values map[string]json.RawMessage `json:"values"`
}

// Point is one frame's value of a single parameter.
type Point struct {
	Frame int             `json:"frame"`
	Value json.RawMessage `json:"value"`
}

// ReadFile decodes a record file. Malformed content returns ErrParse.
func ReadFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, services.Wrap(services.ErrParse, "merge", "decode record",
			fmt.Sprintf("Record file %s is corrupt", filepath.Base(path)), err)
	}
	return rows, nil
}

// WriteFile encodes rows as a record file.
func WriteFile(path string, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// NewRow builds a row from plain Go values.
func NewRow(frame int, values map[string]any) (Row, error) {
	row := Row{Frame: frame, Values: make(map[string]json.RawMessage, len(values))}
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return Row{}, fmt.Errorf("encode %s: %w", k, err)
		}
		row.Values[k] = raw
	}
	return row, nil
}

// ReadSeries decodes a merged parameter file.
func ReadSeries(path string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "merge", "read series",
				fmt.Sprintf("Parameter file %s missing", filepath.Base(path)), err)
		}
		return nil, err
	}
	var points []Point
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, services.Wrap(services.ErrParse, "merge", "decode series",
			fmt.Sprintf("Parameter file %s is corrupt", filepath.Base(path)), err)
	}
	return points, nil
}

// Floats decodes the numeric values of a series, skipping non-numeric ones.
func Floats(points []Point) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		var v float64
		if err := json.Unmarshal(p.Value, &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func writeSeries(path string, points []Point) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
