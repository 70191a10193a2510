// Package partition splits work across workers and frame indices across
// fixed-width blocks.
package partition

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"blockflow/internal/services"
)

// Slice is one worker's share of the input files, keyed by mode.
type Slice map[string][]string

// Len returns the number of files in the slice across all modes.
func (s Slice) Len() int {
	total := 0
	for _, files := range s {
		total += len(files)
	}
	return total
}

// RoundRobin deals every mode's list across n slices: slice i receives the
// items at positions i, i+n, i+2n, ... in their original relative order.
// Every slice carries an entry for every mode, empty when nothing was dealt.
func RoundRobin(lists map[string][]string, n int) ([]Slice, error) {
	if n < 1 {
		return nil, services.Wrap(services.ErrConfiguration, "preprocess", "split work",
			fmt.Sprintf("Worker count must be at least 1, got %d", n), nil)
	}
	slices := make([]Slice, n)
	for i := range slices {
		slices[i] = make(Slice, len(lists))
		for mode := range lists {
			slices[i][mode] = []string{}
		}
	}
	for mode, files := range lists {
		for j, file := range files {
			i := j % n
			slices[i][mode] = append(slices[i][mode], file)
		}
	}
	return slices, nil
}

// Block is the half-open frame-index window [Start, Stop).
type Block struct {
	Start int
	Stop  int
}

// Contains reports whether index falls inside the block.
func (b Block) Contains(index int) bool {
	return index >= b.Start && index < b.Stop
}

// Len returns the number of frame indices covered by the block.
func (b Block) Len() int { return b.Stop - b.Start }

// Name returns the block directory name, frame<start>-<stop>, with both
// bounds zero padded to digits.
func (b Block) Name(digits int) string {
	return fmt.Sprintf("frame%0*d-%0*d", digits, b.Start, digits, b.Stop)
}

// Blocks covers [frameStart, frameStop) with windows of the given width.
// The last window ends exactly at frameStop and may be narrower than width.
func Blocks(frameStart, frameStop, width int) ([]Block, error) {
	if width <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "reorganize", "partition blocks",
			fmt.Sprintf("Block width must be positive, got %d", width), nil)
	}
	if frameStop <= frameStart {
		return nil, services.Wrap(services.ErrConfiguration, "reorganize", "partition blocks",
			fmt.Sprintf("Frame stop %d must exceed frame start %d", frameStop, frameStart), nil)
	}
	blocks := make([]Block, 0, (frameStop-frameStart+width-1)/width)
	for start := frameStart; start < frameStop; start += width {
		blocks = append(blocks, Block{Start: start, Stop: min(start+width, frameStop)})
	}
	return blocks, nil
}

// Digits returns the zero-padding width for block names: the number of
// decimal digits in frameStop-frameStart+1.
func Digits(frameStart, frameStop int) int {
	n := frameStop - frameStart + 1
	if n < 1 {
		n = 1
	}
	return len(strconv.Itoa(n))
}

// Find returns the position of the block containing index.
func Find(blocks []Block, index int) (int, bool) {
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].Stop > index })
	if i < len(blocks) && blocks[i].Contains(index) {
		return i, true
	}
	return 0, false
}

var blockNamePattern = regexp.MustCompile(`^frame(\d+)-(\d+)$`)

// ParseName recovers a block from its directory name.
func ParseName(name string) (Block, bool) {
	m := blockNamePattern.FindStringSubmatch(name)
	if m == nil {
		return Block{}, false
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return Block{}, false
	}
	stop, err := strconv.Atoi(m[2])
	if err != nil || stop <= start {
		return Block{}, false
	}
	return Block{Start: start, Stop: stop}, true
}
