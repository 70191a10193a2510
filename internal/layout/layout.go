// Package layout names the directories and files a position produces and
// decides, from what is on disk, where an interrupted position resumes.
//
// Everything here is a pure function of paths and directory listings so the
// resume rules can be tested without running any stage.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"blockflow/internal/partition"
	"blockflow/internal/services"
)

const (
	TempDirName   = "temp"
	BlocksDirName = "blocks"
	TraceFileName = "Trace.json"
	EditsFileName = "edits.json"
)

var titler = cases.Title(language.Und)

// ModeTitle returns the mode name as used in directory names ("phase" -> "Phase").
func ModeTitle(mode string) string {
	return titler.String(mode)
}

// SegmentDirName is the per-block directory (and archive stem) holding a
// mode's segmented images.
func SegmentDirName(mode string) string { return ModeTitle(mode) + "Segment" }

// DataDirName is the per-block directory holding a mode's per-frame records
// until they are merged.
func DataDirName(mode string) string { return ModeTitle(mode) + "Data" }

// Position locates one position's raw and analyses directories.
type Position struct {
	Name        string
	RawDir      string
	AnalysesDir string
}

// ForPosition builds the directories of position name under the raw and
// analyses experiment directories.
func ForPosition(rawExperimentDir, analysesExperimentDir, name string) Position {
	return Position{
		Name:        name,
		RawDir:      filepath.Join(rawExperimentDir, name),
		AnalysesDir: filepath.Join(analysesExperimentDir, name),
	}
}

func (p Position) TempDir() string   { return filepath.Join(p.AnalysesDir, TempDirName) }
func (p Position) BlocksDir() string { return filepath.Join(p.AnalysesDir, BlocksDirName) }
func (p Position) EditsFile() string { return filepath.Join(p.AnalysesDir, EditsFileName) }

// BlockDir returns the directory of block b.
func (p Position) BlockDir(b partition.Block, digits int) string {
	return filepath.Join(p.BlocksDir(), b.Name(digits))
}

// TraceFile returns the tracking output of a block directory.
func TraceFile(blockDir string) string { return filepath.Join(blockDir, TraceFileName) }

// BlockRef is a block directory found on disk.
type BlockRef struct {
	Block partition.Block
	Dir   string
}

// ListBlocks returns the block directories under blocksDir ordered by start
// frame. A missing blocks directory yields no blocks.
func ListBlocks(blocksDir string) ([]BlockRef, error) {
	entries, err := os.ReadDir(blocksDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	var refs []BlockRef
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		b, ok := partition.ParseName(entry.Name())
		if !ok {
			continue
		}
		refs = append(refs, BlockRef{Block: b, Dir: filepath.Join(blocksDir, entry.Name())})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Block.Start < refs[j].Block.Start })
	return refs, nil
}

// BlockDirs returns just the directories of refs.
func BlockDirs(refs []BlockRef) []string {
	dirs := make([]string, len(refs))
	for i, r := range refs {
		dirs[i] = r.Dir
	}
	return dirs
}

// State is what Inspect found on disk for one position.
type State struct {
	TempExists bool
	Blocks     []BlockRef
	Traced     int
	Collated   bool
}

// HasBlocks reports whether any block directory exists.
func (s State) HasBlocks() bool { return len(s.Blocks) > 0 }

// Inspect reads the on-disk state of a position.
func Inspect(p Position) (State, error) {
	var state State
	var err error
	if state.TempExists, err = isDir(p.TempDir()); err != nil {
		return State{}, err
	}
	if state.Blocks, err = ListBlocks(p.BlocksDir()); err != nil {
		return State{}, err
	}
	for _, ref := range state.Blocks {
		ok, err := isFile(TraceFile(ref.Dir))
		if err != nil {
			return State{}, err
		}
		if ok {
			state.Traced++
		}
	}
	if state.Collated, err = isFile(p.EditsFile()); err != nil {
		return State{}, err
	}
	return state, nil
}

// ResumePoint is the first stage a position has to run.
type ResumePoint int

const (
	// ResumePreprocess runs the position from the start.
	ResumePreprocess ResumePoint = iota
	// ResumeTrack reuses existing blocks and restarts at tracking.
	ResumeTrack
	// ResumeDone skips a position whose collated output exists.
	ResumeDone
)

func (r ResumePoint) String() string {
	switch r {
	case ResumePreprocess:
		return "preprocess"
	case ResumeTrack:
		return "track"
	case ResumeDone:
		return "done"
	default:
		return fmt.Sprintf("resume(%d)", int(r))
	}
}

// Resume decides where the pre-edit workflow restarts for a position. Write
// mode 0 always starts over (the caller clears earlier outputs). In write
// mode 1 a temp workspace next to existing blocks means an earlier
// reorganization stopped half way; that needs operator cleanup and returns
// ErrPartialRun.
func Resume(state State, writeMode int) (ResumePoint, error) {
	if writeMode == 0 {
		return ResumePreprocess, nil
	}
	switch {
	case state.TempExists && state.HasBlocks():
		return ResumePreprocess, services.Wrap(services.ErrPartialRun, "discover", "resume",
			"Both temp workspace and block directories exist; run 'blockflow clean' before resuming", nil)
	case state.Collated && state.HasBlocks():
		return ResumeDone, nil
	case state.HasBlocks():
		return ResumeTrack, nil
	default:
		return ResumePreprocess, nil
	}
}

// ReadyForPostedit reports whether a position has collated blocks to post-edit.
func ReadyForPostedit(state State) bool {
	return state.Collated && state.HasBlocks()
}

// Reset removes the temp workspace, the block directories and the collated
// output of a position. Used by write mode 0.
func Reset(p Position) error {
	for _, path := range []string{p.TempDir(), p.BlocksDir(), p.EditsFile()} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("reset %s: %w", path, err)
		}
	}
	return nil
}

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
