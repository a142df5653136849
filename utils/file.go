package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStorage writes objects under a local directory that the server exposes
// statically. Dev mode uses it in place of R2.
type DiskStorage struct {
	root    string
	baseURL string
}

func NewDiskStorage(root, baseURL string) (*DiskStorage, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &DiskStorage{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root is the directory objects are written to
func (d *DiskStorage) Root() string {
	return d.root
}

// PutObject writes body to root/key and returns baseURL/key. Metadata is not stored.
func (d *DiskStorage) PutObject(_ context.Context, key, _ string, body []byte, _ map[string]string) (string, error) {
	path := filepath.Join(d.root, filepath.FromSlash(key))

	// ✅ Security: keys must stay inside root
	if !strings.HasPrefix(path, filepath.Clean(d.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal object key: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return d.baseURL + "/" + key, nil
}
