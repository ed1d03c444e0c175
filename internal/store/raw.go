package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const rawPrefix = "oi_spurts_"

// SaveRaw writes one downloaded spreadsheet to the raw directory for audit
// and replay, then prunes the oldest files of the same day beyond the
// configured cap. Returns the filename written.
func (s *Store) SaveRaw(capturedAt time.Time, ext string, content []byte) (string, error) {
	name := fmt.Sprintf("%s%s%s", rawPrefix, capturedAt.Format("20060102_150405"), ext)
	path := filepath.Join(s.rawDir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to save raw file: %w", err)
	}
	if err := s.pruneRaw(capturedAt); err != nil {
		return name, fmt.Errorf("failed to prune raw files: %w", err)
	}
	return name, nil
}

// pruneRaw keeps at most maxRawPerDay raw files for the given day, removing
// the oldest first. Filenames embed the capture time, so lexical order is
// chronological.
func (s *Store) pruneRaw(day time.Time) error {
	dayPrefix := rawPrefix + day.Format("20060102")

	entries, err := os.ReadDir(s.rawDir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), dayPrefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) <= s.maxRawPerDay {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-s.maxRawPerDay] {
		if err := os.Remove(filepath.Join(s.rawDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// RawFileCount reports how many raw files exist for the given day.
func (s *Store) RawFileCount(day time.Time) (int, error) {
	dayPrefix := rawPrefix + day.Format("20060102")
	entries, err := os.ReadDir(s.rawDir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), dayPrefix) {
			n++
		}
	}
	return n, nil
}
