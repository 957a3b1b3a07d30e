package apply

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"tonearm/internal/fileutil"
	"tonearm/internal/plan"
)

// TagWriter reads and writes a track's embedded tags. Implementations for
// real containers live behind this interface; the pipeline only depends on
// snapshot and patch semantics.
type TagWriter interface {
	// ReadTags returns the track's current tags. A file with no tags returns
	// the zero patch and no error.
	ReadTags(path string) (plan.TagPatch, error)
	// WriteTags replaces the track's tags with the given values.
	WriteTags(path string, tags plan.TagPatch) error
}

// Relocator is implemented by tag writers whose storage sits beside the audio
// file and has to follow it when the file moves.
type Relocator interface {
	Relocate(oldPath, newPath string) error
}

// SidecarTagWriter keeps tags in a JSON file next to the track. It exists for
// tests and dry runs on libraries without writable containers; real formats
// get their own TagWriter.
type SidecarTagWriter struct{}

const sidecarSuffix = ".tags.json"

func (SidecarTagWriter) ReadTags(path string) (plan.TagPatch, error) {
	data, err := os.ReadFile(path + sidecarSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return plan.TagPatch{}, nil
		}
		return plan.TagPatch{}, fmt.Errorf("read tag sidecar: %w", err)
	}
	var tags plan.TagPatch
	if err := json.Unmarshal(data, &tags); err != nil {
		return plan.TagPatch{}, fmt.Errorf("decode tag sidecar for %s: %w", path, err)
	}
	return tags, nil
}

func (SidecarTagWriter) WriteTags(path string, tags plan.TagPatch) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat track: %w", err)
	}
	data, err := json.Marshal(&tags)
	if err != nil {
		return fmt.Errorf("encode tag sidecar: %w", err)
	}
	if err := os.WriteFile(path+sidecarSuffix, data, 0o644); err != nil {
		return fmt.Errorf("write tag sidecar: %w", err)
	}
	return nil
}

// Relocate moves the sidecar alongside its track. A track without a sidecar
// needs nothing moved.
func (SidecarTagWriter) Relocate(oldPath, newPath string) error {
	if _, err := os.Stat(oldPath + sidecarSuffix); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat tag sidecar: %w", err)
	}
	return fileutil.MoveFile(oldPath+sidecarSuffix, newPath+sidecarSuffix)
}
