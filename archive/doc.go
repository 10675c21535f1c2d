// Package archive stores cycle and seam results in a SQLite database.
//
// The Recorder observes the cycle controller on the cyclic task and hands rows to a writer task
// over a buffered channel. The cyclic task never waits for the database: when the channel is full
// the row is dropped and counted.
package archive
