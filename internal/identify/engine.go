package identify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"tonearm/internal/config"
	"tonearm/internal/evidence"
	"tonearm/internal/faults"
	"tonearm/internal/logging"
	"tonearm/internal/providercache"
	"tonearm/internal/textutil"
)

// Engine fuses fingerprint and metadata evidence into ranked candidates.
type Engine struct {
	cache     *providercache.Cache
	providers []Provider
	cfg       config.Identify
	logger    *slog.Logger

	// metadataOnly disables the fingerprint channel. Running a directory that
	// has fingerprints while a capable provider exists is then an invariant
	// violation, not a soft fallback.
	metadataOnly bool
}

// Option customises the engine.
type Option func(*Engine)

// WithMetadataOnly disables the fingerprint channel. Identify rejects
// directories that carry fingerprints while a fingerprint-capable provider
// is configured.
func WithMetadataOnly() Option {
	return func(e *Engine) { e.metadataOnly = true }
}

// New constructs an identification engine. Providers are ordered by name so
// multi-provider runs are deterministic regardless of registration order.
func New(cache *providercache.Cache, providers []Provider, cfg config.Identify, logger *slog.Logger, opts ...Option) *Engine {
	sorted := append([]Provider(nil), providers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	e := &Engine{
		cache:     cache,
		providers: sorted,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "identify"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Identify scores release candidates for the directory. Errors never leave
// partial state: on any error the directory is untouched and the outcome
// must be discarded.
func (e *Engine) Identify(ctx context.Context, ev *evidence.DirEvidence) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return Outcome{}, faults.Wrap(faults.ErrValidation, "identifying", "validate evidence", err.Error(), nil)
	}
	normalized := *ev
	normalized.Tracks = append([]evidence.TrackEvidence(nil), ev.Tracks...)
	normalized.Normalize()

	logger := logging.WithContext(ctx, e.logger)

	fpTracks := normalized.FingerprintedTracks()
	fpProviders := e.capableProviders(func(p Provider) bool { return p.SupportsFingerprints() })
	if len(fpTracks) > 0 && len(fpProviders) > 0 && e.metadataOnly {
		return Outcome{}, faults.Wrap(
			faults.ErrInvariant,
			"identifying", "channel selection",
			fmt.Sprintf("directory has %d fingerprinted tracks and a fingerprint-capable provider; metadata-only matching is forbidden", len(fpTracks)),
			nil,
		)
	}

	var notes []string

	fpResult, err := e.runFingerprintChannel(ctx, &normalized, fpTracks, fpProviders)
	if err != nil {
		return Outcome{}, err
	}
	notes = append(notes, fpResult.notes...)
	if fpResult.unavailable {
		// Offline fingerprint provider with uncached queries: deterministic
		// no-candidates outcome for the whole directory. Metadata results
		// must not stand in for the missing channel.
		logger.Warn("fingerprint provider unavailable; directory unresolved",
			logging.String(logging.FieldEventType, "identify_offline"))
		return Outcome{Notes: notes}, nil
	}

	metaResult, err := e.runMetadataChannel(ctx, &normalized)
	if err != nil {
		return Outcome{}, err
	}
	notes = append(notes, metaResult.notes...)

	candidates, err := e.fuse(&normalized, fpResult, metaResult)
	if err != nil {
		return Outcome{}, err
	}

	if len(candidates) == 0 {
		notes = append(notes, "no release candidates from any channel")
		logger.Info("identification produced no candidates",
			logging.Int("fingerprinted_tracks", len(fpTracks)))
		return Outcome{Notes: notes}, nil
	}

	logger.Info("identification ranked candidates",
		logging.Int("candidates", len(candidates)),
		logging.String("top_release", candidates[0].Identity()),
		logging.Float64("top_score", candidates[0].Score))
	return Outcome{Candidates: candidates, Notes: notes}, nil
}

func (e *Engine) capableProviders(capable func(Provider) bool) []Provider {
	out := make([]Provider, 0, len(e.providers))
	for _, p := range e.providers {
		if capable(p) {
			out = append(out, p)
		}
	}
	return out
}

// normalizedHints derives the metadata query from tag hints, enforcing the
// degenerate-query precondition: with hints present, an all-empty query must
// fail fast instead of being forwarded as a broad search.
func normalizedHints(ev *evidence.DirEvidence) (MetadataSearch, bool, error) {
	artist, album, present := ev.TagHints()
	if !present {
		return MetadataSearch{}, false, nil
	}
	query := MetadataSearch{
		Artist:     artist,
		Album:      album,
		TrackCount: len(ev.Tracks),
	}
	if textutil.NormalizeQuery(artist) == "" && textutil.NormalizeQuery(album) == "" {
		return MetadataSearch{}, false, faults.Wrap(
			faults.ErrValidation,
			"identifying", "metadata query",
			fmt.Sprintf("tag hints exist but normalize to an empty query (artist %q, album %q)", artist, album),
			nil,
		)
	}
	return query, true, nil
}
