// Package logtail reads the tail of the console's log file for the in-app
// log view.
//
// # Reading
//
// Read returns the last maxLines lines of a file using a ring buffer of
// maxLines strings, so memory stays bounded regardless of file size. Lines
// come back in file order. A missing file yields no lines and no error;
// maxLines <= 0 yields nothing. Lines up to 1MB are supported.
//
// # Parsing
//
// The console logs zap JSON lines. Parse decodes one into an Entry with the
// time, level, logger name and message pulled out and the remaining keys
// (minus caller) left in Fields. Anything that isn't a JSON object, such as
// a panic trace, is kept verbatim in Raw. Entry.String renders a compact,
// stable one-line form with fields sorted by key.
package logtail
