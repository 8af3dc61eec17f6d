package intercache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vdcrpt/internal/logging"
)

// Stats describes current cache usage.
type Stats struct {
	Root           string         `json:"root"`
	Entries        int            `json:"entries"`
	TotalBytes     int64          `json:"total_bytes"`
	MaxBytes       int64          `json:"max_bytes"`
	FreeBytes      uint64         `json:"free_bytes"`
	TotalFSBytes   uint64         `json:"total_fs_bytes"`
	FreeRatio      float64        `json:"free_ratio"`
	EntrySummaries []EntrySummary `json:"entry_summaries"`
}

// EntrySummary surfaces details about one cached intermediate, newest first
// in Stats.
type EntrySummary struct {
	Key        string    `json:"key"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Fingerprint returns the input fingerprint portion of the key.
func (e EntrySummary) Fingerprint() string {
	fingerprint, _, _ := strings.Cut(e.Key, "_")
	return fingerprint
}

// Stats returns current cache usage and filesystem free-space info.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Root: m.root, MaxBytes: m.maxBytes}
	entries, totalSize, err := m.scan()
	if err != nil {
		return s, err
	}
	if len(entries) > 0 {
		totalFS, freeFS, err := m.statfs(m.root)
		if err != nil {
			return s, fmt.Errorf("intercache: statfs: %w", err)
		}
		s.TotalFSBytes = totalFS
		s.FreeBytes = freeFS
		s.FreeRatio = 1.0
		if totalFS > 0 {
			s.FreeRatio = float64(freeFS) / float64(totalFS)
		}
	}
	s.Entries = len(entries)
	s.TotalBytes = totalSize
	s.EntrySummaries = make([]EntrySummary, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		s.EntrySummaries = append(s.EntrySummaries, EntrySummary{
			Key:        entry.key,
			Path:       entry.path,
			SizeBytes:  entry.sizeBytes,
			ModifiedAt: entry.modTime,
		})
	}
	if len(entries) == 0 {
		m.logger.DebugContext(ctx, "intermediate cache empty", logging.String("cache_dir", m.root))
	}
	return s, nil
}
