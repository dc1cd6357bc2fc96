// Package preflight provides readiness checks for the filesystem paths,
// external binaries, and credentials vidscribe depends on.
//
// The CLI "vidscribe doctor" command runs every check and prints the
// results. "vidscribe run" calls RunAll before starting a pipeline so a
// missing binary or unwritable directory fails fast instead of after a
// long download.
package preflight
