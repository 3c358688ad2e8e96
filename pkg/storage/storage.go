// Package storage is a small blob store abstraction used for annotated frame output.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNoPublicUrl = errors.New("No public URL for this blob store")
var ErrInvalidName = errors.New("Invalid file name")

// Storage is an abstraction of a blob store (eg a directory, or a GCS bucket)
type Storage interface {
	// When finished, you must close the WriteCloser
	WriteFile(ctx context.Context, name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(ctx context.Context, name string) (*File, error)

	DeleteFile(ctx context.Context, name string) error

	// URL returns a publicly reachable URL, or ErrNoPublicUrl
	URL(name string) (string, error)
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

func WriteFile(ctx context.Context, s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(ctx, name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func ReadFile(ctx context.Context, s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}
