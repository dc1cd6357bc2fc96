// Package history persists one row per pipeline run in a SQLite database so
// the CLI can list past transcripts and their outcomes.
package history
