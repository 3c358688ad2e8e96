package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"
)

// StorageFS is a filesystem-based blob store
type StorageFS struct {
	Root string
	log  logs.Log
}

func NewStorageFS(log logs.Log, root string) (*StorageFS, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("Failed to create root directory %v (relative path %v): %w", absRoot, root, err)
	}
	return &StorageFS{
		Root: absRoot,
		log:  log,
	}, nil
}

func (fs *StorageFS) path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %v", ErrInvalidName, name)
	}
	return filepath.Join(fs.Root, name), nil
}

func (fs *StorageFS) WriteFile(ctx context.Context, name string) (io.WriteCloser, error) {
	fullPath, err := fs.path(name)
	if err != nil {
		return nil, err
	}
	fs.log.Debugf("Writing file %v", name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(fullPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
}

func (fs *StorageFS) ReadFile(ctx context.Context, name string) (*File, error) {
	fullPath, err := fs.path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &File{
		Reader:     file,
		ModifiedAt: st.ModTime(),
		Size:       st.Size(),
	}, nil
}

func (fs *StorageFS) DeleteFile(ctx context.Context, name string) error {
	fullPath, err := fs.path(name)
	if err != nil {
		return err
	}
	fs.log.Debugf("Deleting file %v", name)
	return os.Remove(fullPath)
}

func (fs *StorageFS) URL(name string) (string, error) {
	return "", ErrNoPublicUrl
}
