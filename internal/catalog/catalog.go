// Package catalog implements identify.Provider over a local JSON catalog
// document. Provider backends are injected interfaces; the catalog backend
// serves air-gapped libraries and end-to-end runs without any network client,
// answering fingerprint and metadata searches from a file.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"tonearm/internal/faults"
	"tonearm/internal/identify"
	"tonearm/internal/textutil"
)

// Document is the on-disk catalog format.
type Document struct {
	Provider      string                    `json:"provider"`
	ClientVersion string                    `json:"client_version"`
	Recordings    []identify.RecordingMatch `json:"recordings,omitempty"`
	Releases      []identify.Release        `json:"releases,omitempty"`
}

// Provider answers identification queries from a loaded catalog.
type Provider struct {
	name          string
	clientVersion string
	byFingerprint map[string][]identify.RecordingMatch
	releases      map[string]*identify.Release
	summaries     []identify.ReleaseSummary
}

var _ identify.Provider = (*Provider)(nil)

// Load reads and indexes a catalog file.
func Load(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "catalog", "parse",
			fmt.Sprintf("%s is not a valid catalog document", path), err)
	}
	if doc.Provider == "" || doc.ClientVersion == "" {
		return nil, faults.Wrap(faults.ErrValidation, "catalog", "parse",
			fmt.Sprintf("%s is missing provider or client_version", path), nil)
	}

	p := &Provider{
		name:          doc.Provider,
		clientVersion: doc.ClientVersion,
		byFingerprint: make(map[string][]identify.RecordingMatch),
		releases:      make(map[string]*identify.Release, len(doc.Releases)),
	}
	for _, match := range doc.Recordings {
		p.byFingerprint[match.Fingerprint] = append(p.byFingerprint[match.Fingerprint], match)
	}
	for i := range doc.Releases {
		release := doc.Releases[i]
		release.Provider = doc.Provider
		if release.ReleaseID == "" {
			return nil, faults.Wrap(faults.ErrValidation, "catalog", "parse",
				fmt.Sprintf("%s contains a release without an id", path), nil)
		}
		p.releases[release.ReleaseID] = &release
		discs := release.DiscCount
		if discs <= 0 {
			discs = 1
		}
		p.summaries = append(p.summaries, identify.ReleaseSummary{
			ReleaseID:  release.ReleaseID,
			Artist:     release.Artist,
			Album:      release.Album,
			Year:       release.Year,
			TrackCount: len(release.Tracks),
			DiscCount:  discs,
		})
	}
	sort.Slice(p.summaries, func(i, j int) bool { return p.summaries[i].ReleaseID < p.summaries[j].ReleaseID })
	return p, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) ClientVersion() string { return p.clientVersion }

func (p *Provider) SupportsFingerprints() bool { return len(p.byFingerprint) > 0 }

func (p *Provider) SupportsMetadata() bool { return len(p.summaries) > 0 }

func (p *Provider) SearchByFingerprints(_ context.Context, queries []identify.FingerprintQuery) ([]identify.RecordingMatch, error) {
	var out []identify.RecordingMatch
	for _, query := range queries {
		out = append(out, p.byFingerprint[query.Fingerprint]...)
	}
	return out, nil
}

// SearchByMetadata returns every release whose normalized artist or album
// contains the normalized query terms. Results come back in release-id order.
func (p *Provider) SearchByMetadata(_ context.Context, query identify.MetadataSearch) ([]identify.ReleaseSummary, error) {
	artist := textutil.NormalizeQuery(query.Artist)
	album := textutil.NormalizeQuery(query.Album)
	var out []identify.ReleaseSummary
	for _, summary := range p.summaries {
		if artist != "" && !strings.Contains(textutil.NormalizeQuery(summary.Artist), artist) {
			continue
		}
		if album != "" && !strings.Contains(textutil.NormalizeQuery(summary.Album), album) {
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}

func (p *Provider) LookupRelease(_ context.Context, releaseID string) (*identify.Release, error) {
	release, ok := p.releases[releaseID]
	if !ok {
		return nil, faults.Wrap(faults.ErrProvider, "catalog", "lookup release",
			fmt.Sprintf("release %s not in catalog %s", releaseID, p.name), nil)
	}
	return release, nil
}
