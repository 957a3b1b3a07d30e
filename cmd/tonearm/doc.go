// Command tonearm is the CLI for the music library organizer: evidence
// ingest, identification, pin decisions, planning, apply, and maintenance of
// the provider cache and directory state.
package main
