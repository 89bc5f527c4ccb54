package receipt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Object describes a stored image
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// Storage defines the interface for image storage operations
type Storage interface {
	// Store writes data under key and returns where to fetch it
	Store(ctx context.Context, key string, data []byte, contentType string) (*Object, error)

	// Fetch returns the object's bytes and content type
	Fetch(ctx context.Context, key string) ([]byte, string, error)

	// Delete removes an object
	Delete(ctx context.Context, key string) error
}

// imageURL is the proxy URL the API serves a stored key from
func imageURL(publicBaseURL, key string) string {
	return strings.TrimRight(publicBaseURL, "/") + "/api/images?key=" + url.QueryEscape(key)
}

// contentTypeFor guesses a MIME type from a file extension
func contentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return ""
	}
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath      string
	publicBaseURL string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath, publicBaseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath:      basePath,
		publicBaseURL: publicBaseURL,
	}, nil
}

// resolve maps a slash-separated key to a path under basePath, refusing
// anything that would escape it
func (l *LocalStorage) resolve(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.basePath, rel), nil
}

// Store saves a file to local storage
func (l *LocalStorage) Store(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	return &Object{Key: key, URL: imageURL(l.publicBaseURL, key), ContentType: contentType}, nil
}

// Fetch retrieves a file from local storage
func (l *LocalStorage) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}

	contentType := contentTypeFor(key)
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("object %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
