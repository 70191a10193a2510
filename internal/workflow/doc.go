// Package workflow sequences the per-position stages of an experiment run.
//
// A RunContext carries everything one invocation needs: the experiment
// directories, the resolved analysis modes, the worker count, the frame
// window and block size, the position log and the logger. The Sequencer
// walks positions one at a time through the pre-edit stages
// (discover, preprocess, reorganize, archive, merge, track, stitch,
// collate), the interactive edit hand-off, and the per-block post-edit
// stage. A failed position is recorded and skipped; the remaining positions
// still run.
package workflow
