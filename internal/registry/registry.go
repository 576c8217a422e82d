package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ErrNotFound is returned when a file identifier has no registry entry.
var ErrNotFound = errors.New("no such file")

// ErrIDTaken is returned by PutIfAbsent when the identifier already has
// a record.
var ErrIDTaken = errors.New("file id already in use")

// FileRecord describes one stored file: its display name, total byte
// size, and the ordered chunk locator URLs (index = chunk ordinal).
type FileRecord struct {
	Filename string   `json:"filename"`
	Size     int64    `json:"size"`
	URLs     []string `json:"urls"`
}

// Registry is the durable id → FileRecord mapping, persisted as a
// single JSON document keyed by string-encoded identifiers. The
// document is read in full on every lookup and rewritten in full on
// every mutation; writes land in a temporary file in the same directory
// and are renamed into place, so no reader ever observes a torn
// document. A mutex serializes mutations: the registry assumes a single
// process owns the file.
type Registry struct {
	path string
	mu   sync.Mutex
}

// Open returns a registry backed by the document at path. A missing
// document is treated as an empty registry.
func Open(path string) *Registry {
	return &Registry{path: path}
}

// Get returns the record for id, or ErrNotFound.
func (r *Registry) Get(id int) (FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return FileRecord{}, err
	}
	rec, ok := records[strconv.Itoa(id)]
	if !ok {
		return FileRecord{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return rec, nil
}

// Put upserts the record for id. Last write wins.
func (r *Registry) Put(id int, rec FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	records[strconv.Itoa(id)] = rec
	return r.save(records)
}

// PutIfAbsent commits the record only if id has no entry yet, so two
// writers racing on the same allocated id cannot silently overwrite
// each other. The check and the write happen under one lock.
func (r *Registry) PutIfAbsent(id int, rec FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	key := strconv.Itoa(id)
	if _, exists := records[key]; exists {
		return fmt.Errorf("%w: id %d", ErrIDTaken, id)
	}
	records[key] = rec
	return r.save(records)
}

// IDs returns the set of identifiers currently in use.
func (r *Registry) IDs() (map[int]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	ids := make(map[int]struct{}, len(records))
	for key := range records {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("corrupt registry document: non-numeric key %q", key)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// List returns every entry keyed by identifier.
func (r *Registry) List() (map[int]FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make(map[int]FileRecord, len(records))
	for key, rec := range records {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("corrupt registry document: non-numeric key %q", key)
		}
		out[id] = rec
	}
	return out, nil
}

// ImportFrom merges the document at path into the registry. For ids
// present on both sides the imported record wins wholesale; fields are
// never merged. It returns the number of records imported.
func (r *Registry) ImportFrom(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read import document %s: %w", path, err)
	}
	var external map[string]FileRecord
	if err := json.Unmarshal(data, &external); err != nil {
		return 0, fmt.Errorf("corrupt import document %s: %w", path, err)
	}
	// Reject the whole document before mutating: a non-numeric key
	// would poison every later read of the registry.
	for key := range external {
		if _, err := strconv.Atoi(key); err != nil {
			return 0, fmt.Errorf("corrupt import document %s: non-numeric key %q", path, key)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return 0, err
	}
	for key, rec := range external {
		records[key] = rec
	}
	if err := r.save(records); err != nil {
		return 0, err
	}
	return len(external), nil
}

// load reads the full document. A missing file is an empty registry;
// anything unparseable is reported as corruption rather than silently
// reset.
func (r *Registry) load() (map[string]FileRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]FileRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read registry document %s: %w", r.path, err)
	}
	var records map[string]FileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("corrupt registry document %s: %w", r.path, err)
	}
	if records == nil {
		records = map[string]FileRecord{}
	}
	return records, nil
}

// save rewrites the full document atomically: temp file in the same
// directory, then rename over the old document.
func (r *Registry) save(records map[string]FileRecord) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode registry document: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create registry directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*")
	if err != nil {
		return fmt.Errorf("failed to create registry temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write registry document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize registry document: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace registry document: %w", err)
	}
	return nil
}
