package stream

import (
	"bytes"
	"context"

	"github.com/cyclopcam/binwatch/pkg/annotate"
	"github.com/cyclopcam/binwatch/pkg/kibi"
	"github.com/cyclopcam/binwatch/pkg/storage"
	"github.com/cyclopcam/logs"
)

// FrameSink receives processed frames, in order
type FrameSink interface {
	WriteFrame(ctx context.Context, fr *FrameResult) error
}

// StorageSink writes annotated frames as JPEGs into a blob store.
// Frames without an annotated image are skipped.
type StorageSink struct {
	Store   storage.Storage
	Quality int    // JPEG quality (0 = annotate.DefaultJPEGQuality)
	Keep    int    // If non-zero, delete older frames so that only the most recent Keep frames remain
	Prefix  string // Prepended to every frame name, eg "session-12/"
	log     logs.Log
	written []string
}

func NewStorageSink(log logs.Log, store storage.Storage) *StorageSink {
	return &StorageSink{
		Store: store,
		log:   log,
	}
}

func (s *StorageSink) WriteFrame(ctx context.Context, fr *FrameResult) error {
	if fr.Annotated == nil {
		return nil
	}
	jpg, err := annotate.EncodeJPEG(fr.Annotated, s.Quality)
	if err != nil {
		return err
	}
	name := s.Prefix + FrameFilename(fr.Frame)
	if err := storage.WriteFile(ctx, s.Store, name, bytes.NewReader(jpg)); err != nil {
		return err
	}
	s.log.Debugf("Wrote %v (%v)", name, kibi.FormatBytes(int64(len(jpg))))
	s.written = append(s.written, name)
	if s.Keep > 0 && len(s.written) > s.Keep {
		old := s.written[0]
		s.written = s.written[1:]
		if err := s.Store.DeleteFile(ctx, old); err != nil {
			s.log.Warnf("Failed to delete old frame %v: %v", old, err)
		}
	}
	return nil
}

// Written returns the names of the frames currently in the store, oldest first
func (s *StorageSink) Written() []string {
	return s.written
}
