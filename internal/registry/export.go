package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ExportTo writes a snapshot containing only the requested ids into a
// new document under dir. The file is named baseName.json; if that name
// is taken, a " (1)", " (2)", ... suffix is appended before the
// extension until a free name is found. An existing export is never
// overwritten. The path of the written file is returned.
func (r *Registry) ExportTo(dir string, ids []int, baseName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return "", err
	}

	snapshot := make(map[string]FileRecord, len(ids))
	for _, id := range ids {
		key := strconv.Itoa(id)
		rec, ok := records[key]
		if !ok {
			return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		snapshot[key] = rec
	}

	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export document: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	f, path, err := createExportFile(dir, baseName)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write export document: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to finalize export document: %w", err)
	}
	return path, nil
}

// createExportFile claims the first free disambiguated name with
// O_EXCL, so two exports racing on the same base name cannot collide.
func createExportFile(dir, baseName string) (*os.File, string, error) {
	for i := 0; ; i++ {
		name := baseName + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s (%d).json", baseName, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", fmt.Errorf("failed to create export file %s: %w", path, err)
		}
	}
}
