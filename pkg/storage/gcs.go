package storage

import (
	"context"
	"errors"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
)

// StorageGCS is a Google Cloud Storage-based blob store
type StorageGCS struct {
	bucketName string
	prefix     string
	bucket     *gcs.BucketHandle
	isPublic   bool
	log        logs.Log
}

// NewStorageGCS opens a bucket using the default application credentials.
// Every object name is prefixed with prefix, which may be empty.
func NewStorageGCS(ctx context.Context, log logs.Log, bucketName, prefix string, isPublic bool) (*StorageGCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &StorageGCS{
		bucketName: bucketName,
		prefix:     prefix,
		bucket:     client.Bucket(bucketName),
		isPublic:   isPublic,
		log:        log,
	}, nil
}

func (s *StorageGCS) object(name string) *gcs.ObjectHandle {
	return s.bucket.Object(s.prefix + name)
}

func (s *StorageGCS) WriteFile(ctx context.Context, name string) (io.WriteCloser, error) {
	s.log.Debugf("Writing gs://%v/%v%v", s.bucketName, s.prefix, name)
	w := s.object(name).NewWriter(ctx)
	if len(name) > 4 && name[len(name)-4:] == ".jpg" {
		w.ContentType = "image/jpeg"
	}
	return w, nil
}

func (s *StorageGCS) ReadFile(ctx context.Context, name string) (*File, error) {
	r, err := s.object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return &File{
		Reader:     r,
		ModifiedAt: r.Attrs.LastModified,
		Size:       r.Attrs.Size,
	}, nil
}

func (s *StorageGCS) DeleteFile(ctx context.Context, name string) error {
	s.log.Debugf("Deleting gs://%v/%v%v", s.bucketName, s.prefix, name)
	return s.object(name).Delete(ctx)
}

func (s *StorageGCS) URL(name string) (string, error) {
	if !s.isPublic {
		return "", ErrNoPublicUrl
	}
	return "https://storage.googleapis.com/" + s.bucketName + "/" + s.prefix + name, nil
}

// IsNotExist returns true if err means that a file is not in the blob store
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, gcs.ErrObjectNotExist)
}
