// Package main hosts the vidscribe CLI entrypoint and command graph.
//
// The Cobra-based command tree turns a video URL into a speaker-attributed
// transcript, inspects run history, reports the hardware tier, and
// scaffolds configuration. Configuration resolution and logging setup live
// in the command context so subcommands only wire collaborators.
package main
