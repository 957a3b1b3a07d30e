package plan

import (
	"fmt"
	"path"
	"strings"

	"tonearm/internal/config"
	"tonearm/internal/evidence"
	"tonearm/internal/faults"
	"tonearm/internal/identify"
	"tonearm/internal/textutil"
)

// Input bundles everything Build needs. ExistingPaths is a snapshot of the
// library's current relative paths; passing it in keeps Build free of I/O.
type Input struct {
	Release  *identify.Release
	Evidence *evidence.DirEvidence
	Config   config.Planner
	// ExistingPaths are library-relative paths that already exist. Collision
	// checks are case-insensitive.
	ExistingPaths []string
}

// Build computes the mutation plan for a pinned release. It never touches
// the filesystem; two calls with equal inputs return byte-identical plans.
func Build(in Input) (*Plan, error) {
	if in.Release == nil {
		return nil, faults.Wrap(faults.ErrValidation, "planning", "validate input", "no release pinned", nil)
	}
	if in.Evidence == nil || len(in.Evidence.Tracks) == 0 {
		return nil, faults.Wrap(faults.ErrValidation, "planning", "validate input", "no evidence tracks", nil)
	}
	policy, ok := ParsePolicy(in.Config.ConflictPolicy)
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "planning", "validate input",
			fmt.Sprintf("unknown conflict policy %q", in.Config.ConflictPolicy), nil)
	}

	ev := *in.Evidence
	ev.Tracks = append([]evidence.TrackEvidence(nil), in.Evidence.Tracks...)
	ev.Normalize()

	release := in.Release
	albumArtist := albumArtistFor(release, in.Config.VariousArtistsName)
	albumDir := albumDirFor(release, in.Config.AlbumYearSuffix)
	artistDir := textutil.SanitizeSegment(albumArtist)

	mapping, err := mapTracks(&ev, release)
	if err != nil {
		return nil, err
	}

	used := make(map[string]struct{}, len(in.ExistingPaths))
	for _, existing := range in.ExistingPaths {
		used[strings.ToLower(existing)] = struct{}{}
	}

	multiDisc := release.DiscCount > 1

	p := &Plan{
		DirID:     ev.DirID,
		Provider:  release.Provider,
		ReleaseID: release.ReleaseID,
		Artist:    albumArtist,
		Album:     release.Album,
		Year:      release.Year,
		Conflict:  policy,
	}

	for i, track := range ev.Tracks {
		rel := mapping[i]
		fileName := trackFileName(rel, multiDisc, path.Ext(track.Path))
		target := path.Join(artistDir, albumDir, fileName)

		trackPlan := TrackPlan{
			SourcePath: track.Path,
			Patch: TagPatch{
				Artist:      trackArtist(rel, release),
				AlbumArtist: albumArtist,
				Album:       release.Album,
				Title:       rel.Title,
				TrackNum:    rel.TrackNum,
				TrackTotal:  len(release.Tracks),
				DiscNum:     discNumOf(rel),
				DiscTotal:   discTotalOf(release),
				Year:        release.Year,
			},
		}

		lowered := strings.ToLower(target)
		if _, collides := used[lowered]; collides {
			switch policy {
			case ConflictFail:
				return nil, faults.Wrap(faults.ErrConflict, "planning", "resolve target",
					fmt.Sprintf("destination %q already exists (policy fail)", target), nil)
			case ConflictSkip:
				trackPlan.Skipped = true
				trackPlan.SkipReason = fmt.Sprintf("destination %q already exists", target)
			case ConflictRename:
				target = renameTarget(target, used)
				lowered = strings.ToLower(target)
			}
		}
		if !trackPlan.Skipped {
			trackPlan.TargetRelPath = target
			used[lowered] = struct{}{}
		}
		p.Tracks = append(p.Tracks, trackPlan)
	}

	hash, err := hashPlan(p)
	if err != nil {
		return nil, err
	}
	p.Hash = hash
	return p, nil
}

// albumArtistFor applies the single-artist vs mixed-artist naming rule: a
// release whose tracks all agree with the release artist files under that
// artist, anything else files under the configured various-artists name.
func albumArtistFor(release *identify.Release, variousName string) string {
	for _, track := range release.Tracks {
		if track.Artist != "" && track.Artist != release.Artist {
			return variousName
		}
	}
	if release.Artist == "" {
		return variousName
	}
	return release.Artist
}

func albumDirFor(release *identify.Release, yearSuffix bool) string {
	album := textutil.SanitizeSegment(release.Album)
	if yearSuffix && release.Year > 0 {
		album = fmt.Sprintf("%s (%d)", album, release.Year)
	}
	return album
}

// mapTracks pairs evidence tracks with release tracks. Tracks tagged with a
// disc/track number map by number; untagged tracks map positionally, which
// requires equal counts.
func mapTracks(ev *evidence.DirEvidence, release *identify.Release) (map[int]identify.ReleaseTrack, error) {
	byNumber := make(map[string]identify.ReleaseTrack, len(release.Tracks))
	for _, rel := range release.Tracks {
		byNumber[trackKey(discNumOf(rel), rel.TrackNum)] = rel
	}

	mapping := make(map[int]identify.ReleaseTrack, len(ev.Tracks))
	for i, track := range ev.Tracks {
		if track.TrackNum > 0 {
			disc := track.DiscNum
			if disc <= 0 {
				disc = 1
			}
			rel, ok := byNumber[trackKey(disc, track.TrackNum)]
			if !ok {
				return nil, faults.Wrap(faults.ErrValidation, "planning", "map tracks",
					fmt.Sprintf("evidence track %q (disc %d, track %d) has no counterpart in release %s",
						track.Path, disc, track.TrackNum, release.ReleaseID), nil)
			}
			mapping[i] = rel
			continue
		}
		if len(ev.Tracks) != len(release.Tracks) {
			return nil, faults.Wrap(faults.ErrValidation, "planning", "map tracks",
				fmt.Sprintf("untagged track %q cannot map positionally: directory has %d tracks, release has %d",
					track.Path, len(ev.Tracks), len(release.Tracks)), nil)
		}
		mapping[i] = release.Tracks[i]
	}
	return mapping, nil
}

func trackKey(disc, track int) string {
	return fmt.Sprintf("%d/%d", disc, track)
}

func trackFileName(rel identify.ReleaseTrack, multiDisc bool, ext string) string {
	title := textutil.SanitizeSegment(rel.Title)
	ext = strings.ToLower(ext)
	if multiDisc {
		return fmt.Sprintf("%d-%02d %s%s", discNumOf(rel), rel.TrackNum, title, ext)
	}
	return fmt.Sprintf("%02d %s%s", rel.TrackNum, title, ext)
}

func trackArtist(rel identify.ReleaseTrack, release *identify.Release) string {
	if rel.Artist != "" {
		return rel.Artist
	}
	return release.Artist
}

func discNumOf(rel identify.ReleaseTrack) int {
	if rel.DiscNum <= 0 {
		return 1
	}
	return rel.DiscNum
}

func discTotalOf(release *identify.Release) int {
	if release.DiscCount <= 0 {
		return 1
	}
	return release.DiscCount
}

// renameTarget appends " (2)", " (3)", ... before the extension until the
// path is free. The suffix order is fixed, so renames are reproducible.
func renameTarget(target string, used map[string]struct{}) string {
	ext := path.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, taken := used[strings.ToLower(candidate)]; !taken {
			return candidate
		}
	}
}
