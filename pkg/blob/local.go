package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes objects below a directory on the local filesystem, for development.
type LocalStore struct {
	Dir string
	// PublicBaseURL replaces the default file:// URL, e.g. when Dir is served over HTTP.
	PublicBaseURL string
}

var _ Store = &LocalStore{}

func (l *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	objectPath := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(objectPath), 0777); err != nil {
		return "", fmt.Errorf("could not create directory for %s: %w", key, err)
	}
	// write to a sibling and rename so readers never observe a partial object
	tmp, err := os.CreateTemp(filepath.Dir(objectPath), "."+filepath.Base(objectPath)+".*")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file for %s: %w", key, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("could not write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("could not close %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", fmt.Errorf("could not set permissions on %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), objectPath); err != nil {
		return "", fmt.Errorf("could not move %s into place: %w", key, err)
	}
	if l.PublicBaseURL != "" {
		return objectURL(l.PublicBaseURL, key), nil
	}
	abs, err := filepath.Abs(objectPath)
	if err != nil {
		return "", fmt.Errorf("could not resolve absolute path of %s: %w", key, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
