package plan

// ConflictPolicy decides what happens when a destination path already exists.
type ConflictPolicy string

const (
	// ConflictFail aborts planning on any collision. The safe default.
	ConflictFail ConflictPolicy = "fail"
	// ConflictSkip leaves colliding tracks where they are.
	ConflictSkip ConflictPolicy = "skip"
	// ConflictRename appends a numeric suffix until the target is free.
	ConflictRename ConflictPolicy = "rename"
)

// ParsePolicy maps a config string onto a ConflictPolicy.
func ParsePolicy(value string) (ConflictPolicy, bool) {
	switch ConflictPolicy(value) {
	case ConflictFail, ConflictSkip, ConflictRename:
		return ConflictPolicy(value), true
	}
	return "", false
}

// TagPatch is the tag rewrite for one track. Zero values mean "leave field".
type TagPatch struct {
	Artist      string `json:"artist,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Title       string `json:"title,omitempty"`
	TrackNum    int    `json:"track_num,omitempty"`
	TrackTotal  int    `json:"track_total,omitempty"`
	DiscNum     int    `json:"disc_num,omitempty"`
	DiscTotal   int    `json:"disc_total,omitempty"`
	Year        int    `json:"year,omitempty"`
}

// TrackPlan is the planned mutation for one source file.
type TrackPlan struct {
	// SourcePath is the track's path relative to the scanned directory.
	SourcePath string `json:"source_path"`
	// TargetRelPath is the destination relative to the library root. Empty
	// when the track is skipped.
	TargetRelPath string   `json:"target_rel_path,omitempty"`
	Patch         TagPatch `json:"patch"`
	Skipped       bool     `json:"skipped,omitempty"`
	SkipReason    string   `json:"skip_reason,omitempty"`
}

// Plan is a proposed mutation for one directory. Consumed once by the
// applier and persisted for audit.
type Plan struct {
	DirID     string         `json:"dir_id"`
	Provider  string         `json:"provider"`
	ReleaseID string         `json:"release_id"`
	Artist    string         `json:"artist"`
	Album     string         `json:"album"`
	Year      int            `json:"year,omitempty"`
	Conflict  ConflictPolicy `json:"conflict"`
	Tracks    []TrackPlan    `json:"tracks"`
	// Hash is the canonical content hash; identical inputs always produce
	// identical hashes.
	Hash string `json:"hash"`
}

// ActiveTracks returns the tracks that actually move, preserving order.
func (p *Plan) ActiveTracks() []TrackPlan {
	out := make([]TrackPlan, 0, len(p.Tracks))
	for _, track := range p.Tracks {
		if !track.Skipped {
			out = append(out, track)
		}
	}
	return out
}
