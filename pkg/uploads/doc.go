// Package uploads persists submitted audio and reference files.
//
// Files land flat in the configured upload directory under their base
// name; directory components from the client (or from ZIP entry paths)
// are discarded, so a crafted name cannot escape the directory, and a
// re-upload of the same name overwrites. Every write is capped at the
// configured size limit.
//
// A ZIP bundle is expanded like a set of direct uploads: audio entries
// are persisted, one reference JSON (a map of file id to expected text)
// is parsed, dotfile and unrecognized entries are skipped. Sweep
// removes files older than the retention window on behalf of the
// janitor.
package uploads
