package corpus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// allowedExtensions lists the formats an extractor exists for. Other
// uploads are rejected at import time rather than failing later in the
// pipeline.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".csv":  true,
	".xlsx": true,
	".xls":  true,
}

// RejectedFile explains why one upload was refused.
type RejectedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// ImportReport summarizes one import call.
type ImportReport struct {
	Series   string         `json:"series"`
	Accepted []string       `json:"accepted"`
	Rejected []RejectedFile `json:"rejected"`
}

// ImportReader imports one named stream into a series. The returned
// name is the stored filename after collision resolution.
func (s *Storage) ImportReader(series, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("extension %s not supported", ext)
	}
	return s.SaveFile(series, filename, r)
}

// ImportFiles imports local paths into a series. Unreadable or
// unsupported files land in the rejected list; the rest are stored.
func (s *Storage) ImportFiles(series string, paths []string) (*ImportReport, error) {
	if !s.SeriesExists(series) {
		return nil, fmt.Errorf("import: series %s does not exist", series)
	}
	report := &ImportReport{Series: series, Accepted: []string{}, Rejected: []RejectedFile{}}
	for _, path := range paths {
		name := filepath.Base(path)
		f, err := os.Open(path)
		if err != nil {
			report.Rejected = append(report.Rejected, RejectedFile{Filename: name, Reason: err.Error()})
			continue
		}
		stored, err := s.ImportReader(series, name, f)
		f.Close()
		if err != nil {
			report.Rejected = append(report.Rejected, RejectedFile{Filename: name, Reason: err.Error()})
			continue
		}
		report.Accepted = append(report.Accepted, stored)
	}
	return report, nil
}
