// Package s6k implements the S6K result pipeline.
//
// In S6K mode the line controller does not toggle the cycle and seam triggers. It publishes the
// identity of the part being processed as three numeric fields (batch id, seam-series, seam) and
// the Pipeline opens and closes cycle, seam-series and seam in the cycle controller whenever the
// triple changes. The accepted triple is echoed on the mirror outputs.
//
// Per-image measurement pairs are collected into blocks of a fixed image count. Blocks fill in
// the input ring; a complete block moves to the output ring and is transmitted on the result
// block output with a valid/acknowledge handshake. A quality dialog reports the category 1 and
// category 2 seam error bitmasks of the seam-series with the same handshake after every seam.
package s6k
