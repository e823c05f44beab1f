package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"convanalyzer/internal/models"
)

// LoadConversations reads the cleaned conversation file.
func LoadConversations(path string) ([]models.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conversations %s: %w", path, err)
	}
	var convs []models.Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations %s: %w", path, err)
	}
	return convs, nil
}

// LoadResults reads an analysis output file.
func LoadResults(path string) ([]models.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", path, err)
	}
	var results []models.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", path, err)
	}
	return results, nil
}

// SaveStats describes what SaveResults found and wrote.
type SaveStats struct {
	Previous int
	Written  int
	// Corrupt is set when an existing file could not be decoded and was replaced.
	Corrupt bool
}

// SaveResults writes results to path. With appendExisting, results already in
// the file are kept in front of the new ones.
func SaveResults(path string, results []models.Result, appendExisting bool) (SaveStats, error) {
	var stats SaveStats
	all := make([]models.Result, 0, len(results))
	if appendExisting {
		existing, err := LoadResults(path)
		switch {
		case err == nil:
			all = append(all, existing...)
			stats.Previous = len(existing)
		case errors.Is(err, os.ErrNotExist):
		default:
			stats.Corrupt = true
		}
	}
	all = append(all, results...)
	stats.Written = len(all)

	if err := WriteJSON(path, all); err != nil {
		return stats, err
	}
	return stats, nil
}

// WriteJSON writes v as 2-space indented JSON via a temp file and rename.
func WriteJSON(path string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
