package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/soochol/chatflow/internal/chatflow"
)

// avatarTypes maps accepted content types to file extensions.
var avatarTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var keyPattern = regexp.MustCompile(`^avatar-[0-9a-f-]{36}\.(png|jpg|gif|webp)$`)

// LocalStorage stores blobs on the local filesystem under one directory
// per tenant.
type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

func (s *LocalStorage) path(tenantID, key string) (string, error) {
	if tenantID == "" || strings.ContainsAny(tenantID, `/\.`) {
		return "", fmt.Errorf("%w: tenant %q", chatflow.ErrTenantViolation, tenantID)
	}
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.baseDir, tenantID, key), nil
}

func (s *LocalStorage) Put(_ context.Context, tenantID, contentType string, r io.Reader) (*Blob, error) {
	ext, ok := avatarTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
	key := chatflow.GenerateID("avatar") + ext
	fullPath, err := s.path(tenantID, key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("create tenant dir: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("write file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	return &Blob{Key: key, TenantID: tenantID, ContentType: contentType, Size: n, CreatedAt: st.ModTime()}, nil
}

func (s *LocalStorage) Get(_ context.Context, tenantID, key string) (*Blob, io.ReadCloser, error) {
	fullPath, err := s.path(tenantID, key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	return &Blob{
		Key:         key,
		TenantID:    tenantID,
		ContentType: contentTypeOf(key),
		Size:        st.Size(),
		CreatedAt:   st.ModTime(),
	}, f, nil
}

func (s *LocalStorage) Delete(_ context.Context, tenantID, key string) error {
	fullPath, err := s.path(tenantID, key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("blob %s: %w", key, ErrNotFound)
		}
		return err
	}
	return nil
}

func contentTypeOf(key string) string {
	ext := filepath.Ext(key)
	for ct, e := range avatarTypes {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}
