// Package config loads and validates the tonearm TOML configuration and
// derives the per-stage settings hashes the state machine uses to decide
// whether cached results remain valid.
package config
