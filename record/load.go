package record

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnreadable is returned when no file of a corpus could be read.
var ErrUnreadable = errors.New("record: corpus unreadable")

// LoadFile reads the chunk records stored in path. JSON and JSON Lines are
// decoded with Decode; spreadsheets are read with LoadXLSX.
func LoadFile(path string) ([]ChunkRecord, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "xlsx":
		return LoadXLSX(path)
	case "json", "jsonl", "ndjson", "txt", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("record: reading %s: %w", path, err)
		}
		recs, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("record: decoding %s: %w", path, err)
		}
		source := filepath.Base(path)
		for i := range recs {
			if recs[i].Source == "" && recs[i].Metadata.Source == "" {
				recs[i].Source = source
			}
		}
		return recs, nil
	}
	return nil, fmt.Errorf("record: unsupported file type %q", ext)
}

// LoadCorpus reads every path, expanding directories one level deep. Files
// that fail to load are logged and skipped; ErrUnreadable is returned only
// when nothing could be read.
func LoadCorpus(paths ...string) ([]ChunkRecord, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			slog.Warn("ingest: skipping path", "path", p, "error", err)
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			slog.Warn("ingest: skipping directory", "path", p, "error", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".json", ".jsonl", ".ndjson", ".xlsx":
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}

	var (
		out  []ChunkRecord
		read int
	)
	for _, f := range files {
		recs, err := LoadFile(f)
		if err != nil {
			slog.Warn("ingest: skipping unreadable file", "path", f, "error", err)
			continue
		}
		read++
		out = append(out, recs...)
	}
	if read == 0 {
		return nil, fmt.Errorf("%w: %d path(s) given", ErrUnreadable, len(paths))
	}
	slog.Info("ingest: corpus loaded", "files", read, "skipped", len(files)-read, "chunks", len(out))
	return out, nil
}
