package identify

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"tonearm/internal/evidence"
	"tonearm/internal/textutil"
)

// Fusion weights. The fingerprint branch applies to the whole directory as
// soon as any candidate reaches the configured fingerprint-match threshold;
// candidates without fingerprint support then score with S_fp = 0. This is
// the per-directory branch rule: it keeps a strongly fingerprinted release
// from being outranked by a metadata-only rival scored on a different
// formula.
const (
	weightFpFingerprint = 0.65
	weightFpStructure   = 0.25
	weightFpMetadata    = 0.10

	weightMetaMetadata  = 0.55
	weightMetaStructure = 0.45

	structureTrackWeight = 0.7
	structureDiscWeight  = 0.3
)

func (e *Engine) fuse(ev *evidence.DirEvidence, fp fingerprintChannelResult, meta metadataChannelResult) ([]Candidate, error) {
	identities := make(map[string]struct{}, len(fp.hits)+len(meta.summaries))
	for identity := range fp.hits {
		identities[identity] = struct{}{}
	}
	for identity := range meta.summaries {
		identities[identity] = struct{}{}
	}

	// A configured canonical provider folds duplicate release ids: when two
	// providers name the same release, the canonical provider's candidate
	// absorbs the other's fingerprint support and the duplicate drops out.
	if canonical := e.cfg.CanonicalProvider; canonical != "" {
		for identity := range identities {
			provider, releaseID, found := strings.Cut(identity, ":")
			if !found || provider == canonical {
				continue
			}
			canonicalIdentity := canonical + ":" + releaseID
			if _, dup := identities[canonicalIdentity]; !dup {
				continue
			}
			if fp.hits[identity] > fp.hits[canonicalIdentity] {
				fp.hits[canonicalIdentity] = fp.hits[identity]
			}
			if _, resolved := fp.releases[canonicalIdentity]; !resolved {
				if release, ok := fp.releases[identity]; ok {
					folded := *release
					folded.Provider = canonical
					fp.releases[canonicalIdentity] = &folded
				}
			}
			delete(identities, identity)
			delete(fp.hits, identity)
			delete(fp.releases, identity)
		}
	}

	ordered := make([]string, 0, len(identities))
	for identity := range identities {
		ordered = append(ordered, identity)
	}
	sort.Strings(ordered)

	totalTracks := len(ev.Tracks)
	evidenceDiscs := ev.DiscCount()

	maxHits := 0
	for _, hits := range fp.hits {
		if hits > maxHits {
			maxHits = hits
		}
	}
	fingerprintBranch := maxHits >= e.cfg.MinFingerprintTracks

	jaroWinkler := metrics.NewJaroWinkler()

	candidates := make([]Candidate, 0, len(ordered))
	for _, identity := range ordered {
		candidate := Candidate{FingerprintHits: fp.hits[identity]}

		if release, ok := fp.releases[identity]; ok {
			candidate.Provider = release.Provider
			candidate.ReleaseID = release.ReleaseID
			candidate.Artist = release.Artist
			candidate.Album = release.Album
			candidate.Year = release.Year
			candidate.TrackCount = len(release.Tracks)
			candidate.DiscCount = release.DiscCount
		}
		if summary, ok := meta.summaries[identity]; ok {
			if candidate.ReleaseID == "" {
				candidate.Provider = identity[:len(identity)-len(summary.ReleaseID)-1]
				candidate.ReleaseID = summary.ReleaseID
				candidate.Artist = summary.Artist
				candidate.Album = summary.Album
				candidate.Year = summary.Year
				candidate.TrackCount = summary.TrackCount
				candidate.DiscCount = summary.DiscCount
			}
		}
		if candidate.DiscCount <= 0 {
			candidate.DiscCount = 1
		}

		if totalTracks > 0 {
			candidate.SFingerprint = float64(candidate.FingerprintHits) / float64(totalTracks)
		}
		candidate.SStructure = structureScore(totalTracks, evidenceDiscs, candidate.TrackCount, candidate.DiscCount)
		if meta.hintsFound {
			candidate.SMetadata = metadataScore(jaroWinkler, meta.query, candidate.Artist, candidate.Album)
		}

		if fingerprintBranch {
			candidate.Score = weightFpFingerprint*candidate.SFingerprint +
				weightFpStructure*candidate.SStructure +
				weightFpMetadata*candidate.SMetadata
		} else {
			candidate.Score = weightMetaMetadata*candidate.SMetadata +
				weightMetaStructure*candidate.SStructure
		}

		candidate.Reasons = buildReasons(candidate, totalTracks, evidenceDiscs, meta.hintsFound, fingerprintBranch, e.cfg.MinFingerprintTracks)
		candidates = append(candidates, candidate)
	}

	// Total order: composite score, then fingerprint support, then structure,
	// then canonical identity so equal-scored candidates never reorder.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SFingerprint != b.SFingerprint {
			return a.SFingerprint > b.SFingerprint
		}
		if a.SStructure != b.SStructure {
			return a.SStructure > b.SStructure
		}
		return a.Identity() < b.Identity()
	})
	return candidates, nil
}

// structureScore measures track-count and disc-count agreement in [0,1].
// An unknown release track count scores zero on that component rather than
// pretending agreement.
func structureScore(evTracks, evDiscs, relTracks, relDiscs int) float64 {
	trackComp := agreement(evTracks, relTracks)
	discComp := agreement(evDiscs, relDiscs)
	return structureTrackWeight*trackComp + structureDiscWeight*discComp
}

func agreement(a, b int) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a == b {
		return 1
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	max := a
	if b > max {
		max = b
	}
	comp := 1 - float64(diff)/float64(max)
	if comp < 0 {
		return 0
	}
	return comp
}

// metadataScore combines Jaro-Winkler similarity on normalized artist and
// album strings; the album side also consults token cosine similarity so
// reordered words ("Live at the BBC" vs "At the BBC, Live") still agree.
func metadataScore(jw *metrics.JaroWinkler, query MetadataSearch, artist, album string) float64 {
	hintArtist := textutil.NormalizeQuery(query.Artist)
	hintAlbum := textutil.NormalizeQuery(query.Album)
	candArtist := textutil.NormalizeQuery(artist)
	candAlbum := textutil.NormalizeQuery(album)

	var sum, weight float64
	if hintArtist != "" {
		sum += strutil.Similarity(hintArtist, candArtist, jw)
		weight++
	}
	if hintAlbum != "" {
		albumSim := strutil.Similarity(hintAlbum, candAlbum, jw)
		if cosine := textutil.CosineSimilarity(textutil.NewTokenVector(hintAlbum), textutil.NewTokenVector(candAlbum)); cosine > albumSim {
			albumSim = cosine
		}
		sum += albumSim
		weight++
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func buildReasons(c Candidate, totalTracks, evidenceDiscs int, hintsFound, fingerprintBranch bool, minFpTracks int) []string {
	reasons := make([]string, 0, 5)
	if c.FingerprintHits > 0 {
		reasons = append(reasons, fmt.Sprintf("%d/%d tracks fingerprint-match this release", c.FingerprintHits, totalTracks))
	}
	switch {
	case c.TrackCount <= 0:
		reasons = append(reasons, "release track count unknown")
	case c.TrackCount == totalTracks:
		reasons = append(reasons, fmt.Sprintf("track count matches (%d)", totalTracks))
	default:
		reasons = append(reasons, fmt.Sprintf("track count mismatch: directory %d, release %d", totalTracks, c.TrackCount))
	}
	if c.DiscCount == evidenceDiscs {
		reasons = append(reasons, fmt.Sprintf("disc count matches (%d)", evidenceDiscs))
	} else {
		reasons = append(reasons, fmt.Sprintf("disc count mismatch: directory %d, release %d", evidenceDiscs, c.DiscCount))
	}
	if hintsFound {
		reasons = append(reasons, "tag similarity "+formatScore(c.SMetadata)+" against directory hints")
	}
	if fingerprintBranch {
		reasons = append(reasons, fmt.Sprintf("scored on fingerprint branch (>=%d fingerprint matches in directory)", minFpTracks))
	} else {
		reasons = append(reasons, fmt.Sprintf("scored on metadata branch (no candidate reached %d fingerprint matches)", minFpTracks))
	}
	return reasons
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
