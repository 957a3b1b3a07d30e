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

// fingerprintChannelResult carries per-release fingerprint hit counts plus
// the resolved release documents backing them.
type fingerprintChannelResult struct {
	// hits counts distinct evidence tracks matched per candidate identity.
	hits map[string]int
	// releases holds the resolved release document per candidate identity.
	releases map[string]*Release
	notes    []string
	// unavailable is set when a capable provider could not serve an uncached
	// query. The engine turns this into a no-candidates outcome.
	unavailable bool
}

func (e *Engine) runFingerprintChannel(ctx context.Context, ev *evidence.DirEvidence, fpTracks []evidence.TrackEvidence, providers []Provider) (fingerprintChannelResult, error) {
	result := fingerprintChannelResult{
		hits:     make(map[string]int),
		releases: make(map[string]*Release),
	}
	if len(fpTracks) == 0 {
		result.notes = append(result.notes, "no tracks carry fingerprints")
		return result, nil
	}
	if len(providers) == 0 {
		result.notes = append(result.notes, "no fingerprint-capable provider configured")
		return result, nil
	}

	for _, provider := range providers {
		matches, unavailable, err := e.fingerprintMatches(ctx, provider, fpTracks)
		if err != nil {
			return fingerprintChannelResult{}, err
		}
		if unavailable {
			result.unavailable = true
			result.notes = append(result.notes, fmt.Sprintf("provider %s unavailable for uncached fingerprint queries", provider.Name()))
			return result, nil
		}

		// Count each evidence track at most once per release, regardless of
		// how many recordings of it a release contains.
		perRelease := make(map[string]map[string]struct{})
		for _, match := range matches {
			for _, releaseID := range match.ReleaseIDs {
				identity := provider.Name() + ":" + releaseID
				if perRelease[identity] == nil {
					perRelease[identity] = make(map[string]struct{})
				}
				perRelease[identity][match.Fingerprint] = struct{}{}
			}
		}

		identities := make([]string, 0, len(perRelease))
		for identity := range perRelease {
			identities = append(identities, identity)
		}
		sort.Strings(identities)
		for _, identity := range identities {
			releaseID := identity[len(provider.Name())+1:]
			release, unavailable, err := e.lookupRelease(ctx, provider, releaseID)
			if err != nil {
				return fingerprintChannelResult{}, err
			}
			if unavailable {
				result.unavailable = true
				result.notes = append(result.notes, fmt.Sprintf("provider %s unavailable for release lookup %s", provider.Name(), releaseID))
				return result, nil
			}
			result.hits[identity] += len(perRelease[identity])
			result.releases[identity] = release
		}
	}
	return result, nil
}

// fingerprintMatches resolves every fingerprinted track through the cache,
// batching the misses into one provider call.
func (e *Engine) fingerprintMatches(ctx context.Context, provider Provider, fpTracks []evidence.TrackEvidence) ([]RecordingMatch, bool, error) {
	var matches []RecordingMatch
	var missQueries []FingerprintQuery

	for _, track := range fpTracks {
		key := providercache.Key{
			Provider:      provider.Name(),
			Kind:          providercache.KindFingerprint,
			Query:         providercache.FingerprintQuery(track.Fingerprint, track.DurationSec),
			ClientVersion: provider.ClientVersion(),
		}
		payload, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			missQueries = append(missQueries, FingerprintQuery{Fingerprint: track.Fingerprint, DurationSec: track.DurationSec})
			continue
		}
		var cached []RecordingMatch
		if err := json.Unmarshal(payload, &cached); err != nil {
			return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "decode cached fingerprint response",
				fmt.Sprintf("provider %s", provider.Name()), err)
		}
		matches = append(matches, cached...)
	}

	if len(missQueries) > 0 {
		fresh, err := provider.SearchByFingerprints(ctx, missQueries)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return nil, true, nil
			}
			return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "fingerprint search",
				fmt.Sprintf("provider %s", provider.Name()), err)
		}
		byFingerprint := groupMatches(fresh)
		for _, query := range missQueries {
			group := byFingerprint[query.Fingerprint]
			canonicalizeMatches(group)
			payload, err := json.Marshal(group)
			if err != nil {
				return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "serialize fingerprint response",
					fmt.Sprintf("provider %s", provider.Name()), err)
			}
			key := providercache.Key{
				Provider:      provider.Name(),
				Kind:          providercache.KindFingerprint,
				Query:         providercache.FingerprintQuery(query.Fingerprint, query.DurationSec),
				ClientVersion: provider.ClientVersion(),
			}
			if err := e.cache.Put(ctx, key, payload); err != nil {
				return nil, false, err
			}
			matches = append(matches, group...)
		}
	}
	return matches, false, nil
}

func (e *Engine) lookupRelease(ctx context.Context, provider Provider, releaseID string) (*Release, bool, error) {
	key := providercache.Key{
		Provider:      provider.Name(),
		Kind:          providercache.KindRelease,
		Query:         providercache.ReleaseQuery(releaseID),
		ClientVersion: provider.ClientVersion(),
	}
	payload, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		var release Release
		if err := json.Unmarshal(payload, &release); err != nil {
			return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "decode cached release",
				fmt.Sprintf("provider %s release %s", provider.Name(), releaseID), err)
		}
		return &release, false, nil
	}

	release, err := provider.LookupRelease(ctx, releaseID)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, true, nil
		}
		return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "release lookup",
			fmt.Sprintf("provider %s release %s", provider.Name(), releaseID), err)
	}
	if release == nil || release.ReleaseID == "" {
		return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "release lookup",
			fmt.Sprintf("provider %s returned malformed release for %s", provider.Name(), releaseID), nil)
	}
	canonicalizeRelease(release)
	payload, err = json.Marshal(release)
	if err != nil {
		return nil, false, faults.Wrap(faults.ErrProvider, "identifying", "serialize release",
			fmt.Sprintf("provider %s release %s", provider.Name(), releaseID), err)
	}
	if err := e.cache.Put(ctx, key, payload); err != nil {
		return nil, false, err
	}
	return release, false, nil
}

// ResolveRelease fetches the full release document for a pinned decision,
// reusing the cache. Used by the planner path after a pin.
func (e *Engine) ResolveRelease(ctx context.Context, providerName, releaseID string) (*Release, error) {
	for _, provider := range e.providers {
		if provider.Name() != providerName {
			continue
		}
		release, unavailable, err := e.lookupRelease(ctx, provider, releaseID)
		if err != nil {
			return nil, err
		}
		if unavailable {
			return nil, faults.Wrap(faults.ErrProvider, "identifying", "release lookup",
				fmt.Sprintf("provider %s unavailable and release %s not cached", providerName, releaseID), ErrUnavailable)
		}
		return release, nil
	}
	return nil, faults.Wrap(faults.ErrValidation, "identifying", "release lookup",
		fmt.Sprintf("no provider named %q configured", providerName), nil)
}

func groupMatches(matches []RecordingMatch) map[string][]RecordingMatch {
	grouped := make(map[string][]RecordingMatch, len(matches))
	for _, match := range matches {
		grouped[match.Fingerprint] = append(grouped[match.Fingerprint], match)
	}
	return grouped
}

// canonicalizeMatches sorts matches and their release lists so the cached
// payload bytes are identical for logically identical responses.
func canonicalizeMatches(matches []RecordingMatch) {
	for i := range matches {
		sort.Strings(matches[i].ReleaseIDs)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Fingerprint != matches[j].Fingerprint {
			return matches[i].Fingerprint < matches[j].Fingerprint
		}
		return matches[i].RecordingID < matches[j].RecordingID
	})
}

func canonicalizeRelease(release *Release) {
	sort.SliceStable(release.Tracks, func(i, j int) bool {
		a, b := release.Tracks[i], release.Tracks[j]
		if a.DiscNum != b.DiscNum {
			return a.DiscNum < b.DiscNum
		}
		return a.TrackNum < b.TrackNum
	})
}
