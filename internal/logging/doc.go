// Package logging sets up structured slog output for batchidx.
//
// Logs are JSON lines. With a file path configured they go to a size-rotated
// file under the data directory; stderr can be added alongside. Without a file
// path only stderr is used, at the configured level.
package logging
