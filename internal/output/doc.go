// Package output renders a transcript.Result as txt, srt or json and
// persists it.
//
// Formatting and persistence are separate: Format returns the document as a
// string and Save writes it atomically to disk.
package output
