package blob

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes blobs under a directory served at BaseURL.
type DiskStore struct {
	Dir     string
	BaseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("blob directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &DiskStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := checkKey(name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create attachment folder: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return s.BaseURL + "/" + escapeKey(key), nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
