// Package faults defines the error taxonomy shared by the identification
// engine, planner, and applier. Errors are tagged with sentinel markers via
// Wrap so callers can classify failures with errors.Is without parsing
// message text.
package faults
