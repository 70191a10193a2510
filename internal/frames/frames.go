// Package frames extracts frame indices from per-frame file names.
//
// A naming pattern is literal text with the wildcards * and ? and exactly one
// {frame} placeholder standing for the integer frame index.
package frames

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"blockflow/internal/services"
)

// Placeholder marks the frame index inside a naming pattern.
const Placeholder = "{frame}"

// RecordMarker replaces the image extension in record file names.
const RecordMarker = ".record.json"

// Frame is one file paired with its frame index.
type Frame struct {
	Name  string
	Index int
}

// Window is the half-open frame-index range [Start, Stop).
type Window struct {
	Start int
	Stop  int
}

// Unbounded accepts every non-negative index.
var Unbounded = Window{Start: 0, Stop: math.MaxInt}

// Contains reports whether index falls inside the window.
func (w Window) Contains(index int) bool {
	return index >= w.Start && index < w.Stop
}

// Pattern is a compiled naming pattern.
type Pattern struct {
	source string
	strict *regexp.Regexp
	loose  *regexp.Regexp
}

// Compile parses a naming pattern. Patterns without exactly one {frame}
// placeholder are configuration errors.
func Compile(pattern string) (Pattern, error) {
	if n := strings.Count(pattern, Placeholder); n != 1 {
		return Pattern{}, services.Wrap(
			services.ErrConfiguration,
			"discover",
			"compile pattern",
			fmt.Sprintf("Pattern %q must contain exactly one %s placeholder", pattern, Placeholder),
			nil,
		)
	}
	prefix, suffix, _ := strings.Cut(pattern, Placeholder)
	head := globToRegexp(prefix)
	tail := globToRegexp(suffix)
	strict, err := regexp.Compile("^" + head + `(\d+)` + tail + "$")
	if err != nil {
		return Pattern{}, services.Wrap(services.ErrConfiguration, "discover", "compile pattern", "Invalid pattern", err)
	}
	loose, err := regexp.Compile("^" + head + `(.+?)` + tail + "$")
	if err != nil {
		return Pattern{}, services.Wrap(services.ErrConfiguration, "discover", "compile pattern", "Invalid pattern", err)
	}
	return Pattern{source: pattern, strict: strict, loose: loose}, nil
}

// MustCompile is Compile for patterns known to be valid.
func MustCompile(pattern string) Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func globToRegexp(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*?")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// String returns the source pattern.
func (p Pattern) String() string { return p.source }

// Index extracts the frame index from name. ok is false when the literal
// parts of the pattern do not match. A name whose literal parts match but
// whose captured index is not an integer returns ErrParse.
func (p Pattern) Index(name string) (int, bool, error) {
	if p.strict == nil {
		return 0, false, errors.New("frames: pattern not compiled")
	}
	if m := p.strict.FindStringSubmatch(name); m != nil {
		index, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, true, services.Wrap(services.ErrParse, "discover", "parse frame index",
				fmt.Sprintf("Frame index %q in %s is out of range", m[1], name), err)
		}
		return index, true, nil
	}
	if m := p.loose.FindStringSubmatch(name); m != nil {
		return 0, true, services.Wrap(services.ErrParse, "discover", "parse frame index",
			fmt.Sprintf("Frame index %q in %s is not an integer", m[1], name), nil)
	}
	return 0, false, nil
}

// ScanResult lists the frames found by Scan.
type ScanResult struct {
	Frames  []Frame
	Skipped []string
}

// Len returns the number of matched frames.
func (r ScanResult) Len() int { return len(r.Frames) }

// Names returns the matched file names in scan order.
func (r ScanResult) Names() []string {
	names := make([]string, len(r.Frames))
	for i, f := range r.Frames {
		names[i] = f.Name
	}
	return names
}

// Min returns the smallest frame index. ok is false for an empty result.
func (r ScanResult) Min() (int, bool) {
	if len(r.Frames) == 0 {
		return 0, false
	}
	lowest := r.Frames[0].Index
	for _, f := range r.Frames[1:] {
		lowest = min(lowest, f.Index)
	}
	return lowest, true
}

// Max returns the largest frame index. ok is false for an empty result.
func (r ScanResult) Max() (int, bool) {
	if len(r.Frames) == 0 {
		return 0, false
	}
	highest := r.Frames[0].Index
	for _, f := range r.Frames[1:] {
		highest = max(highest, f.Index)
	}
	return highest, true
}

// Match filters names through the pattern and window. Names that match the
// literal parts but carry an unparseable index are returned in Skipped.
func (p Pattern) Match(names []string, window Window) ScanResult {
	var result ScanResult
	for _, name := range names {
		index, ok, err := p.Index(name)
		if !ok {
			continue
		}
		if err != nil {
			result.Skipped = append(result.Skipped, name)
			continue
		}
		if !window.Contains(index) {
			continue
		}
		result.Frames = append(result.Frames, Frame{Name: name, Index: index})
	}
	return result
}

// Scan lists the regular files of dir in name order and matches them against
// the pattern and window.
func Scan(dir string, pattern Pattern, window Window) (ScanResult, error) {
	names, err := ListFiles(dir)
	if err != nil {
		return ScanResult{}, err
	}
	return pattern.Match(names, window), nil
}

// ListFiles returns the names of the regular files in dir, sorted.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RecordPattern derives the per-frame record pattern from an image pattern.
// A literal extension is replaced by the record marker, so img_t{frame}.tif
// pairs with img_t{frame}.record.json. An extension holding a wildcard or the
// placeholder is kept and the marker appended, so img_t{frame}.* pairs with
// img_t{frame}.*.record.json.
func RecordPattern(imagePattern string) string {
	return strings.TrimSuffix(imagePattern, literalExt(imagePattern)) + RecordMarker
}

// RecordName returns the record file name that pairs with imageName, a file
// matched by imagePattern. It applies the same rule as RecordPattern, so the
// result always matches RecordPattern(imagePattern) with the same index.
func RecordName(imagePattern, imageName string) string {
	return strings.TrimSuffix(imageName, literalExt(imagePattern)) + RecordMarker
}

func literalExt(imagePattern string) string {
	ext := filepath.Ext(imagePattern)
	if strings.Contains(ext, Placeholder) || strings.ContainsAny(ext, "*?") {
		return ""
	}
	return ext
}
