// storage_file.go: Flat-file storage backend
//
// FileStorage serializes the whole value mapping into one file, YAML for
// .yaml/.yml and JSON for .json. Writes go to a temporary file in the same
// directory and are renamed over the target, so readers never observe a
// partially written file.
//
// Parsed contents are cached process-wide per path and revalidated against
// the file modification time and size; every write or clear through any
// FileStorage drops the cached entry for its path.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"go.yaml.in/yaml/v3"
)

// FileFormat identifies the serialization used by FileStorage.
type FileFormat int

const (
	FileFormatYAML FileFormat = iota
	FileFormatJSON
)

// String returns the format name.
func (f FileFormat) String() string {
	switch f {
	case FileFormatYAML:
		return "yaml"
	case FileFormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// DetectFileFormat picks the format from the file extension.
func DetectFileFormat(path string) (FileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FileFormatYAML, nil
	case ".json":
		return FileFormatJSON, nil
	default:
		return 0, invalidConfigError("unsupported storage file extension '%s'", filepath.Ext(path))
	}
}

type fileCacheEntry struct {
	values   map[string]interface{}
	modTime  time.Time
	size     int64
	loadedAt int64
}

var (
	fileContentCache = map[string]fileCacheEntry{}
	fileCacheMutex   sync.RWMutex
)

func cachedFileContent(path string, info os.FileInfo) (map[string]interface{}, bool) {
	fileCacheMutex.RLock()
	defer fileCacheMutex.RUnlock()

	entry, ok := fileContentCache[path]
	if !ok || !entry.modTime.Equal(info.ModTime()) || entry.size != info.Size() {
		return nil, false
	}
	return deepCopy(entry.values), true
}

func storeFileContent(path string, info os.FileInfo, values map[string]interface{}) {
	fileCacheMutex.Lock()
	defer fileCacheMutex.Unlock()

	fileContentCache[path] = fileCacheEntry{
		values:   deepCopy(values),
		modTime:  info.ModTime(),
		size:     info.Size(),
		loadedAt: timecache.CachedTimeNano(),
	}
}

func invalidateFileContent(path string) {
	fileCacheMutex.Lock()
	defer fileCacheMutex.Unlock()
	delete(fileContentCache, path)
}

// FileStorage is a Storage persisting values into a single file.
type FileStorage struct {
	path   string
	format FileFormat
	mu     sync.Mutex
}

// NewFileStorage creates a storage for path; the format follows the extension.
// The file is created on first Save.
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		return nil, invalidConfigError("storage file path cannot be empty")
	}
	format, err := DetectFileFormat(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to resolve storage file path")
	}
	return &FileStorage{path: abs, format: format}, nil
}

// Path returns the absolute file path.
func (s *FileStorage) Path() string { return s.path }

// Format returns the serialization format.
func (s *FileStorage) Format() FileFormat { return s.format }

// Save implements Storage.
func (s *FileStorage) Save(ctx context.Context, values map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return storageError(err, "save")
	}
	if values == nil {
		values = map[string]interface{}{}
	}

	data, err := s.encode(values)
	if err != nil {
		return storageError(err, "save")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer invalidateFileContent(s.path)

	if err := atomicWriteFile(s.path, data); err != nil {
		return storageError(err, "save")
	}
	return nil
}

// Get implements Storage. A missing file reads as an empty mapping.
func (s *FileStorage) Get(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError(err, "get")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, storageError(err, "get")
	}
	if values, ok := cachedFileContent(s.path, info); ok {
		return values, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, storageError(err, "get")
	}
	values, err := s.decode(data)
	if err != nil {
		return nil, storageError(err, "get")
	}
	storeFileContent(s.path, info, values)
	return values, nil
}

// Clear implements Storage by removing the file.
func (s *FileStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storageError(err, "clear")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer invalidateFileContent(s.path)

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return storageError(err, "clear")
	}
	return nil
}

// ClearValue implements Storage.
func (s *FileStorage) ClearValue(ctx context.Context, id string) error {
	return ClearValueBySave(ctx, s, id)
}

func (s *FileStorage) encode(values map[string]interface{}) ([]byte, error) {
	switch s.format {
	case FileFormatJSON:
		return json.MarshalIndent(values, "", "  ")
	default:
		return yaml.Marshal(values)
	}
}

func (s *FileStorage) decode(data []byte) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}

	var err error
	switch s.format {
	case FileFormatJSON:
		err = json.Unmarshal(data, &values)
	default:
		err = yaml.Unmarshal(data, &values)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s storage file: %w", s.format, err)
	}
	if values == nil {
		values = map[string]interface{}{}
	}
	return values, nil
}

// atomicWriteFile writes data to a temporary file next to path and renames it into place.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
