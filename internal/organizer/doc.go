// Package organizer drives the pipeline: recovery, identification, pin
// decisions, planning, and apply, in that order. Directories are processed in
// dir_id order and identification fans out over a bounded worker pool, so a
// run over the same inputs produces the same transitions every time. Applied
// directories whose evidence and settings are unchanged are never touched
// again.
package organizer
