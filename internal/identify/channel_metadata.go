package identify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"tonearm/internal/evidence"
	"tonearm/internal/faults"
	"tonearm/internal/providercache"
)

// metadataChannelResult carries the release summaries found via tag hints.
type metadataChannelResult struct {
	query      MetadataSearch
	hintsFound bool
	// summaries per candidate identity.
	summaries map[string]ReleaseSummary
	notes     []string
}

func (e *Engine) runMetadataChannel(ctx context.Context, ev *evidence.DirEvidence) (metadataChannelResult, error) {
	result := metadataChannelResult{summaries: make(map[string]ReleaseSummary)}

	query, present, err := normalizedHints(ev)
	if err != nil {
		return metadataChannelResult{}, err
	}
	if !present {
		result.notes = append(result.notes, "no tag hints available for metadata search")
		return result, nil
	}
	result.query = query
	result.hintsFound = true

	providers := e.capableProviders(func(p Provider) bool { return p.SupportsMetadata() })
	if len(providers) == 0 {
		result.notes = append(result.notes, "no metadata-capable provider configured")
		return result, nil
	}

	for _, provider := range providers {
		summaries, unavailable, err := e.metadataSearch(ctx, provider, query)
		if err != nil {
			return metadataChannelResult{}, err
		}
		if unavailable {
			// The metadata channel is supplementary: an offline metadata
			// provider only narrows the evidence, it does not invalidate
			// fingerprint results.
			result.notes = append(result.notes, fmt.Sprintf("provider %s unavailable for metadata search", provider.Name()))
			continue
		}
		for _, summary := range summaries {
			if summary.ReleaseID == "" {
				return metadataChannelResult{}, faults.Wrap(faults.ErrProvider, "identifying", "metadata search",
					fmt.Sprintf("provider %s returned a release without an id", provider.Name()), nil)
			}
			identity := provider.Name() + ":" + summary.ReleaseID
			result.summaries[identity] = summary
		}
	}
	return result, nil
}

func (e *Engine) metadataSearch(ctx context.Context, provider Provider, query MetadataSearch) ([]ReleaseSummary, bool, error) {
	key := providercache.Key{
		Provider:      provider.Name(),
		Kind:          providercache.KindMetadata,
		Query:         providercache.MetadataQuery(query.Artist, query.Album, query.TrackCount),
		ClientVersion: provider.ClientVersion(),
	}
	payload, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		var cached []ReleaseSummary
		if err := json.Unmarshal(payload, &cached); err != nil {
			return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "decode cached metadata response",
				fmt.Sprintf("provider %s", provider.Name()), err)
		}
		return cached, false, nil
	}

	fresh, err := provider.SearchByMetadata(ctx, query)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, true, nil
		}
		return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "metadata search",
			fmt.Sprintf("provider %s", provider.Name()), err)
	}
	canonical := append([]ReleaseSummary(nil), fresh...)
	sort.SliceStable(canonical, func(i, j int) bool { return canonical[i].ReleaseID < canonical[j].ReleaseID })
	payload, err = json.Marshal(canonical)
	if err != nil {
		return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "serialize metadata response",
			fmt.Sprintf("provider %s", provider.Name()), err)
	}
	if err := e.cache.Put(ctx, key, payload); err != nil {
		return nil, false, err
	}
	return canonical, false, nil
}
