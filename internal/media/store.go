// Package media stores uploaded hero images and their renditions.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"blango/internal/config"
)

// Rendition names. Each is stored as "<base>/<name>.webp".
const (
	RenditionFull       = "full_size"
	RenditionThumbnail  = "thumbnail"
	RenditionSquareCrop = "square_crop"
)

// Renditions lists every rendition written for a hero image.
var Renditions = []string{RenditionFull, RenditionThumbnail, RenditionSquareCrop}

// RenditionKey returns the object key of one rendition of base.
func RenditionKey(base, name string) string {
	return base + "/" + name + ".webp"
}

// Store persists media objects and renders their public URL.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// New selects the store named by MEDIA_BACKEND.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.MediaBackend {
	case "minio":
		return NewMinIOStore(ctx, MinIOOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "", "local":
		return NewLocalStore(cfg.MediaRoot, cfg.MediaURL), nil
	}
	return nil, fmt.Errorf("unknown media backend %q", cfg.MediaBackend)
}

// LocalStore writes objects below a directory that the server exposes at baseURL.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore returns a store rooted at root.
func NewLocalStore(root, baseURL string) *LocalStore {
	if baseURL == "" {
		baseURL = "/media/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalStore{root: root, baseURL: baseURL}
}

// Root is the directory served at the media URL.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty media key")
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write media file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close media file: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	return s.baseURL + strings.TrimPrefix(key, "/")
}
