// Package corpus manages the document side of a series: uploaded
// files, text extraction, chunking, and chunk embedding sync into the
// graph store. Everything before the knowledge graph build lives here.
package corpus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	rawDirName       = "raw"
	extractedDirName = "extracted"
	chunksDirName    = "chunks"

	defaultMaxFileSizeMB = 50
)

// Storage is the filesystem layout behind a corpus root: one directory
// per series holding raw uploads and derived artifacts.
type Storage struct {
	Root          string
	MaxFileSizeMB int64
}

func NewStorage(root string) *Storage {
	return &Storage{Root: root, MaxFileSizeMB: defaultMaxFileSizeMB}
}

func (s *Storage) seriesRoot() string {
	return filepath.Join(s.Root, "series")
}

// SeriesDir returns the directory of one series without creating it.
func (s *Storage) SeriesDir(series string) string {
	return filepath.Join(s.seriesRoot(), safeName(series))
}

func (s *Storage) rawDir(series string) string {
	return filepath.Join(s.SeriesDir(series), rawDirName)
}

func (s *Storage) extractedDir(series string) string {
	return filepath.Join(s.SeriesDir(series), extractedDirName)
}

func (s *Storage) chunksDir(series string) string {
	return filepath.Join(s.SeriesDir(series), chunksDirName)
}

// CreateSeries creates a series directory and returns the final name.
// An empty name gets a timestamp; an existing name gets a __N suffix
// rather than reusing the old directory.
func (s *Storage) CreateSeries(name string) (string, error) {
	name = safeName(name)
	if name == "" {
		name = "s" + time.Now().Format("20060102-150405")
	}
	final := name
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(s.seriesRoot(), final)); os.IsNotExist(err) {
			break
		}
		final = fmt.Sprintf("%s__%d", name, n)
	}
	if err := os.MkdirAll(filepath.Join(s.seriesRoot(), final, rawDirName), 0o755); err != nil {
		return "", fmt.Errorf("create series %s: %w", final, err)
	}
	return final, nil
}

// ListSeries returns the existing series names, sorted.
func (s *Storage) ListSeries() ([]string, error) {
	entries, err := os.ReadDir(s.seriesRoot())
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// SeriesExists reports whether the series directory is present.
func (s *Storage) SeriesExists(series string) bool {
	info, err := os.Stat(s.SeriesDir(series))
	return err == nil && info.IsDir()
}

// DeleteSeries removes a series directory and everything under it.
func (s *Storage) DeleteSeries(series string) error {
	dir := s.SeriesDir(series)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("delete series: %s does not exist", series)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete series %s: %w", series, err)
	}
	return nil
}

// SaveFile stores one upload under the raw directory of a series and
// returns the filename actually used. Name collisions resolve to
// stem__N.ext; the write goes through a .part temp file and a rename
// so a crashed upload never leaves a half-written raw file.
func (s *Storage) SaveFile(series, filename string, r io.Reader) (string, error) {
	dir := s.rawDir(series)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("save %s: %w", filename, err)
	}

	name := safeName(filename)
	if name == "" {
		return "", fmt.Errorf("save: empty filename")
	}
	name = resolveCollision(dir, name)

	limit := s.MaxFileSizeMB * 1024 * 1024
	tmp := filepath.Join(dir, "."+name+".part")
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = fmt.Errorf("file exceeds %d MB", s.MaxFileSizeMB)
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return name, nil
}

// ListFiles returns the raw filenames of a series, sorted.
func (s *Storage) ListFiles(series string) ([]string, error) {
	entries, err := os.ReadDir(s.rawDir(series))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// safeName strips any path component from a user-supplied name.
func safeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// resolveCollision finds the first free stem__N.ext variant.
func resolveCollision(dir, name string) string {
	if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s__%d%s", stem, n, ext)
		if _, err := os.Stat(filepath.Join(dir, cand)); os.IsNotExist(err) {
			return cand
		}
	}
}

// writeFileAtomic writes data to path through a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
