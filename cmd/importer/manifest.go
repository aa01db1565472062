package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Manifest lists the tracks to import.
type Manifest struct {
	Source string       `json:"source"`
	Tracks []TrackEntry `json:"tracks"`
}

// TrackEntry is one GPX file to attach to a post. Exactly one of File and
// URL is set; relative files resolve against the manifest directory.
type TrackEntry struct {
	PostID     int64  `json:"post_id"`
	File       string `json:"file,omitempty"`
	URL        string `json:"url,omitempty"`
	ModifiedBy int64  `json:"modified_by,omitempty"`
}

func (e TrackEntry) validate() error {
	if e.PostID <= 0 {
		return fmt.Errorf("post_id must be positive, got %d", e.PostID)
	}
	if (e.File == "") == (e.URL == "") {
		return fmt.Errorf("post %d: exactly one of file and url is required", e.PostID)
	}
	return nil
}

// loadManifest reads a manifest file, or builds one from a directory of
// GPX files named <post_id>.gpx or track-<post_id>.gpx.
func loadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return scanDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	base := filepath.Dir(path)
	for i, e := range m.Tracks {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		if e.File != "" && !filepath.IsAbs(e.File) {
			m.Tracks[i].File = filepath.Join(base, e.File)
		}
	}
	if m.Source == "" {
		m.Source = path
	}
	return &m, nil
}

var gpxName = regexp.MustCompile(`^(?:track-)?(\d+)\.gpx$`)

func scanDir(dir string) (*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	m := &Manifest{Source: dir}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		match := gpxName.FindStringSubmatch(de.Name())
		if match == nil {
			continue
		}
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		m.Tracks = append(m.Tracks, TrackEntry{PostID: id, File: filepath.Join(dir, de.Name())})
	}
	sort.Slice(m.Tracks, func(i, j int) bool { return m.Tracks[i].PostID < m.Tracks[j].PostID })
	return m, nil
}
