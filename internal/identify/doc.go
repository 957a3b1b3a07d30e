// Package identify fuses fingerprint-channel and metadata-channel evidence
// into a ranked list of release candidates for a directory.
//
// The two channels run independently and then fuse deterministically: no
// randomness, no wall-clock dependence, no hidden heuristics. All provider
// traffic flows through the provider cache, and an offline fingerprint
// provider resolves to a deterministic no-candidates outcome for the
// directory rather than a silent fall back to metadata-only matching.
package identify
