// Package storage is the blob store for tenant avatars.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound           = errors.New("blob not found")
	ErrInvalidKey         = errors.New("invalid blob key")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// Blob describes a stored object.
type Blob struct {
	Key         string    `json:"key"`
	TenantID    string    `json:"tenantId"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store keeps opaque blobs partitioned by tenant.
type Store interface {
	// Put stores the content and returns its metadata with a fresh key.
	Put(ctx context.Context, tenantID, contentType string, r io.Reader) (*Blob, error)
	// Get opens a blob owned by tenantID.
	Get(ctx context.Context, tenantID, key string) (*Blob, io.ReadCloser, error)
	// Delete removes a blob owned by tenantID.
	Delete(ctx context.Context, tenantID, key string) error
}
