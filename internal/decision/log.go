package decision

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"tonearm/internal/faults"
	"tonearm/internal/identify"
)

// logEntry is one recorded decision. Entries append as JSON lines; the last
// entry for a dir_id wins on replay.
type logEntry struct {
	DirID               string `json:"dir_id"`
	EvidenceFingerprint string `json:"evidence_fingerprint"`
	Provider            string `json:"provider,omitempty"`
	ReleaseID           string `json:"release_id,omitempty"`
	Jail                bool   `json:"jail,omitempty"`
	JailReason          string `json:"jail_reason,omitempty"`
	DecidedAt           string `json:"decided_at"`
}

// Recorder wraps a source and appends every decisive verdict to the log.
// Undecided verdicts are not recorded; they carry no information a replay
// could use.
type Recorder struct {
	inner Source
	path  string
	now   func() time.Time
}

// NewRecorder builds a recorder writing to path.
func NewRecorder(inner Source, path string, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{inner: inner, path: path, now: now}
}

func (r *Recorder) Decide(ctx context.Context, dirID, evidenceFingerprint string, candidates []identify.Candidate) (Verdict, error) {
	verdict, err := r.inner.Decide(ctx, dirID, evidenceFingerprint, candidates)
	if err != nil {
		return Verdict{}, err
	}
	if verdict.Undecided() {
		return verdict, nil
	}
	entry := logEntry{
		DirID:               dirID,
		EvidenceFingerprint: evidenceFingerprint,
		Provider:            verdict.Provider,
		ReleaseID:           verdict.ReleaseID,
		Jail:                verdict.Jail,
		JailReason:          verdict.JailReason,
		DecidedAt:           r.now().UTC().Format(time.RFC3339Nano),
	}
	if err := appendEntry(r.path, entry); err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

// Append records a decisive verdict directly, bypassing any Source. Explicit
// operator pins and jails go through here so they replay like any other
// decision.
func Append(path, dirID, evidenceFingerprint string, v Verdict, now func() time.Time) error {
	if v.Undecided() {
		return fmt.Errorf("refusing to record an undecided verdict for %s", dirID)
	}
	if now == nil {
		now = time.Now
	}
	return appendEntry(path, logEntry{
		DirID:               dirID,
		EvidenceFingerprint: evidenceFingerprint,
		Provider:            v.Provider,
		ReleaseID:           v.ReleaseID,
		Jail:                v.Jail,
		JailReason:          v.JailReason,
		DecidedAt:           now().UTC().Format(time.RFC3339Nano),
	})
}

func appendEntry(path string, entry logEntry) error {
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("encode decision entry: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append decision entry: %w", err)
	}
	return f.Close()
}

// ReplaySource feeds a recorded decision log back into the pipeline. Replay
// never mutates the log. A directory without a recorded decision stays
// undecided, and a recorded decision whose evidence fingerprint no longer
// matches the directory's current evidence fails validation instead of
// silently pinning the wrong release.
type ReplaySource struct {
	entries map[string]logEntry
}

// LoadReplay reads the log at path. A missing file is an empty log.
func LoadReplay(path string) (*ReplaySource, error) {
	src := &ReplaySource{entries: make(map[string]logEntry)}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return src, nil
		}
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var entry logEntry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, faults.Wrap(faults.ErrValidation, "decision", "parse replay log",
				fmt.Sprintf("line %d is not a valid entry", line), err)
		}
		if entry.DirID == "" || entry.EvidenceFingerprint == "" {
			return nil, faults.Wrap(faults.ErrValidation, "decision", "parse replay log",
				fmt.Sprintf("line %d is missing dir_id or evidence_fingerprint", line), nil)
		}
		src.entries[entry.DirID] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read decision log: %w", err)
	}
	return src, nil
}

// Len returns the number of replayable decisions.
func (r *ReplaySource) Len() int {
	return len(r.entries)
}

func (r *ReplaySource) Decide(ctx context.Context, dirID, evidenceFingerprint string, candidates []identify.Candidate) (Verdict, error) {
	entry, ok := r.entries[dirID]
	if !ok {
		return Verdict{}, nil
	}
	if entry.EvidenceFingerprint != evidenceFingerprint {
		return Verdict{}, faults.Wrap(faults.ErrValidation, "decision", "replay",
			fmt.Sprintf("directory %s evidence changed since the decision was recorded: recorded %s, current %s",
				dirID, entry.EvidenceFingerprint, evidenceFingerprint), nil)
	}
	if entry.Jail {
		return Verdict{Jail: true, JailReason: entry.JailReason}, nil
	}
	return Verdict{Provider: entry.Provider, ReleaseID: entry.ReleaseID}, nil
}
