package reputation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// NewFileStore returns a MemoryStore that loads its records from path and
// rewrites the whole file after every mutation. A missing file starts an
// empty store. Writes go to a temporary file that is renamed over path, so a
// crash never leaves a half-written document behind.
func NewFileStore(path string, logger *zap.Logger) (*MemoryStore, error) {
	s := NewMemoryStore(logger)

	records, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	s.records = records
	s.persist = func(records map[string]*Record) error {
		return saveFile(path, records)
	}

	s.logger.Info("file store loaded", zap.String("path", path), zap.Int("records", len(records)))
	return s, nil
}

func loadFile(path string) (map[string]*Record, error) {
	records := make(map[string]*Record)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reputation: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return records, nil
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("reputation: decode %s: %w", path, err)
	}
	for id, r := range records {
		if r == nil {
			delete(records, id)
			continue
		}
		r.Identity = id
	}
	return records, nil
}

func saveFile(path string, records map[string]*Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("reputation: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("reputation: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("reputation: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("reputation: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("reputation: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("reputation: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("reputation: rename: %w", err)
	}
	return nil
}
