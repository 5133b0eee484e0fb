// Package fs provides a filesystem-backed dao.Service keeping one JSON
// document per record.  It exists so that approval state can survive a
// process restart; the in-memory store remains the default.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/patchgate/patchgate/service/dao"
)

// Store persists records of type *T as <basePath>/<key>.json.
type Store[T any] struct {
	basePath    string
	fs          afs.Service
	keySelector func(*T) string
	mu          sync.RWMutex
}

var _ dao.Service[string, any] = (*Store[any])(nil)

// New creates a file-backed store rooted at basePath, creating the directory
// when missing.
func New[T any](basePath string, keySelector func(*T) string) (*Store[T], error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	service := afs.New()
	ctx := context.Background()
	if exists, _ := service.Exists(ctx, basePath); !exists {
		if err := service.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return &Store[T]{
		basePath:    url.Normalize(basePath, file.Scheme),
		fs:          service,
		keySelector: keySelector,
	}, nil
}

// keyPattern constrains keys to names that stay a single path segment.
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could reach outside the base directory once
// joined into a file path.  Containment also holds without this check; it
// keeps a malformed id from ever touching the filesystem.
func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || !keyPattern.MatchString(key) {
		return dao.ErrInvalidID
	}
	return nil
}

// Save writes the record as JSON, replacing any previous version.
func (s *Store[T]) Save(ctx context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	target := s.recordPath(key)
	if err := s.fs.Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save record to %s: %w", target, err)
	}
	return nil
}

// Load reads a record by key, returning dao.ErrNotFound when absent.
func (s *Store[T]) Load(ctx context.Context, key string) (*T, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	target := s.recordPath(key)
	exists, err := s.fs.Exists(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to check record %s: %w", target, err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", target, err)
	}
	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", target, err)
	}
	return &record, nil
}

// Delete removes a record by key.
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.recordPath(key)
	exists, err := s.fs.Exists(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to check record %s: %w", target, err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, target); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", target, err)
	}
	return nil
}

// List returns all records sorted by key.  Key order is not creation order
// but it is stable, which is the contract callers rely on.
func (s *Store[T]) List(ctx context.Context, _ ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	names := make([]string, 0, len(objects))
	byName := make(map[string][]byte, len(objects))
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			continue // skip unreadable entries, keep listing
		}
		names = append(names, object.Name())
		byName[object.Name()] = data
	}
	sort.Strings(names)

	records := make([]*T, 0, len(names))
	for _, name := range names {
		var record T
		if err := json.Unmarshal(byName[name], &record); err != nil {
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (s *Store[T]) recordPath(key string) string {
	return path.Join(s.basePath, key+".json")
}
