// Command blockflow runs the block-parallel image-analysis workflow over the
// positions of a time-lapse microscopy experiment.
//
// Each command takes the experiment input directory holding params.toml:
//
//	blockflow preedit  <dir>   segment, reorganize, track, stitch, collate
//	blockflow edit     <dir>   interactive editing of collated positions
//	blockflow postedit <dir>   per-block post-editing
//	blockflow status   <dir>   position log
//	blockflow summary  <dir>   per-parameter block statistics
//	blockflow logs     <dir>   tail the most recent run log
//	blockflow clean    <dir>   remove leftover temp workspaces
package main
