// Package storage holds uploaded CSV staging buffers until a sync run
// or standalone import consumes them. Two backends: local filesystem
// and any S3-compatible object store.
package storage

import (
	"context"
	"fmt"
	"time"
)

// StagedFile describes one staged CSV buffer.
type StagedFile struct {
	Key        string    `json:"key"`
	Source     string    `json:"source"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ErrNotStaged is returned when a staging key has no content.
var ErrNotStaged = fmt.Errorf("no staged file for key")

// StagingStore stores and retrieves staging buffers keyed by source.
// Put replaces any previous buffer for the same source; a sync run
// reads via Get and removes the consumed buffer with Delete.
type StagingStore interface {
	Put(ctx context.Context, source string, data []byte) (StagedFile, error)
	Get(ctx context.Context, source string) ([]byte, StagedFile, error)
	Delete(ctx context.Context, source string) error
	List(ctx context.Context) ([]StagedFile, error)
}

func stagingKey(source string) string {
	return fmt.Sprintf("staging/%s.csv", source)
}
