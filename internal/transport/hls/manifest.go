package hls

import (
	"encoding/json"
	"os"
	"time"

	"github.com/omniget/omniget/internal/types"
)

// CompletionManifest is the sidecar written next to a finished HLS download.
// Its presence, together with a size match, lets a re-run skip the file
// without touching the network.
type CompletionManifest struct {
	File        string    `json:"file"`
	Size        int64     `json:"size"`
	Segments    int       `json:"segments"`
	CompletedAt time.Time `json:"completed_at"`
}

// ManifestPath returns the sidecar path for dest.
func ManifestPath(dest string) string {
	return dest + types.DoneSuffix
}

// WriteManifest records a completed download next to dest.
func WriteManifest(dest string, size int64, segments int) error {
	m := CompletionManifest{
		File:        dest,
		Size:        size,
		Segments:    segments,
		CompletedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ManifestPath(dest), data, 0o644)
}

// ReadManifest loads the sidecar for dest, if present.
func ReadManifest(dest string) (*CompletionManifest, error) {
	data, err := os.ReadFile(ManifestPath(dest))
	if err != nil {
		return nil, err
	}
	var m CompletionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// IsComplete reports whether dest was fully downloaded before: the sidecar
// must exist and the file on disk must match its recorded size. A stale or
// tampered sidecar does not count.
func IsComplete(dest string) bool {
	m, err := ReadManifest(dest)
	if err != nil {
		return false
	}
	info, err := os.Stat(dest)
	if err != nil {
		return false
	}
	return info.Size() == m.Size && m.Size > 0
}
