package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalStagingStore keeps staging buffers on the local filesystem, one
// file per source. Suitable for single-instance deployments.
type LocalStagingStore struct {
	dir string
}

// NewLocalStagingStore creates the staging directory if needed.
func NewLocalStagingStore(dir string) (*LocalStagingStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("staging directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &LocalStagingStore{dir: dir}, nil
}

func (s *LocalStagingStore) path(source string) string {
	// Source names are a closed enum upstream, but keep path traversal
	// out regardless.
	return filepath.Join(s.dir, filepath.Base(source)+".csv")
}

// Put writes the buffer, replacing any previous one for the source.
func (s *LocalStagingStore) Put(_ context.Context, source string, data []byte) (StagedFile, error) {
	path := s.path(source)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return StagedFile{}, fmt.Errorf("stage %s: %w", source, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return StagedFile{}, fmt.Errorf("stage %s: %w", source, err)
	}
	return StagedFile{
		Key:        stagingKey(source),
		Source:     source,
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Get reads the staged buffer for the source.
func (s *LocalStagingStore) Get(_ context.Context, source string) ([]byte, StagedFile, error) {
	path := s.path(source)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, StagedFile{}, fmt.Errorf("%w: %s", ErrNotStaged, source)
	}
	if err != nil {
		return nil, StagedFile{}, fmt.Errorf("stat staged %s: %w", source, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, StagedFile{}, fmt.Errorf("read staged %s: %w", source, err)
	}
	return data, StagedFile{
		Key:        stagingKey(source),
		Source:     source,
		Size:       info.Size(),
		UploadedAt: info.ModTime().UTC(),
	}, nil
}

// Delete removes the staged buffer. Missing buffers are not an error.
func (s *LocalStagingStore) Delete(_ context.Context, source string) error {
	err := os.Remove(s.path(source))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete staged %s: %w", source, err)
	}
	return nil
}

// List returns all currently staged buffers sorted by source.
func (s *LocalStagingStore) List(context.Context) ([]StagedFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list staging directory: %w", err)
	}

	var files []StagedFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		source := strings.TrimSuffix(name, ".csv")
		files = append(files, StagedFile{
			Key:        stagingKey(source),
			Source:     source,
			Size:       info.Size(),
			UploadedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Source < files[j].Source })
	return files, nil
}

var _ StagingStore = (*LocalStagingStore)(nil)
