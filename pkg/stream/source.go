package stream

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/binwatch/pkg/nn"
)

// Frame is one decoded video frame, and the detections that the upstream
// object detector found in it.
type Frame struct {
	Number     int         // 1-based frame number in the source video
	Width      int         // Image width, which is needed even if Image is nil
	Height     int         // Image height
	Image      *cimg.Image // May be nil, in which case the frame cannot be annotated
	Detections []nn.Detection
}

// FrameSource is a forward-only, finite sequence of frames.
// Next returns io.EOF when there are no more frames.
type FrameSource interface {
	Next(ctx context.Context) (*Frame, error)
}

// SliceSource yields frames from memory
type SliceSource struct {
	Frames []*Frame
	pos    int
}

func NewSliceSource(frames []*Frame) *SliceSource {
	return &SliceSource{Frames: frames}
}

func (s *SliceSource) Next(ctx context.Context) (*Frame, error) {
	if s.pos >= len(s.Frames) {
		return nil, io.EOF
	}
	f := s.Frames[s.pos]
	s.pos++
	if f.Number == 0 {
		numbered := *f
		numbered.Number = s.pos
		return &numbered, nil
	}
	return f, nil
}

// LabelSource yields frames from a VideoLabels file.
// If FrameDir is set, the JPEG for each frame is loaded from disk as it is needed,
// so only the frames in flight are ever held in memory.
type LabelSource struct {
	Labels   *nn.VideoLabels
	FrameDir string // Overrides Labels.FrameDir
	pos      int
}

// NewLabelSource creates a source over labels. frameDir may be empty, in which
// case labels.FrameDir is used, and if that is also empty then no images are loaded.
func NewLabelSource(labels *nn.VideoLabels, frameDir string) *LabelSource {
	if frameDir == "" {
		frameDir = labels.FrameDir
	}
	return &LabelSource{
		Labels:   labels,
		FrameDir: frameDir,
	}
}

// OpenLabelSource loads a VideoLabels JSON file. A relative frame directory inside
// the file is resolved against the directory of the label file.
func OpenLabelSource(labelFile, frameDir string) (*LabelSource, error) {
	labels, err := nn.LoadVideoLabels(labelFile)
	if err != nil {
		return nil, fmt.Errorf("Failed to load video labels %v: %w", labelFile, err)
	}
	if frameDir == "" && labels.FrameDir != "" && !filepath.IsAbs(labels.FrameDir) {
		frameDir = filepath.Join(filepath.Dir(labelFile), labels.FrameDir)
	}
	return NewLabelSource(labels, frameDir), nil
}

// FrameFilename is the default name of a frame's image, if the label file doesn't name it
func FrameFilename(frameNumber int) string {
	return fmt.Sprintf("frame-%06d.jpg", frameNumber)
}

func (s *LabelSource) Next(ctx context.Context) (*Frame, error) {
	if s.pos >= len(s.Labels.Frames) {
		return nil, io.EOF
	}
	labels := s.Labels.Frames[s.pos]
	s.pos++

	frame := &Frame{
		Number: labels.Frame,
		Width:  labels.Width,
		Height: labels.Height,
	}
	if frame.Number == 0 {
		frame.Number = s.pos
	}
	if frame.Width == 0 && frame.Height == 0 {
		frame.Width = s.Labels.Width
		frame.Height = s.Labels.Height
	}
	if err := nn.ValidateImageSize(frame.Width, frame.Height); err != nil {
		return nil, fmt.Errorf("Frame %v: %w", frame.Number, err)
	}
	if err := nn.ValidateDetections(labels.Objects); err != nil {
		return nil, fmt.Errorf("Frame %v: %w", frame.Number, err)
	}
	frame.Detections = labels.Objects

	if s.FrameDir != "" {
		name := labels.Image
		if name == "" {
			name = FrameFilename(frame.Number)
		}
		img, err := cimg.ReadFile(filepath.Join(s.FrameDir, name))
		if err != nil {
			return nil, fmt.Errorf("Failed to load frame %v: %w", frame.Number, err)
		}
		frame.Image = img
		frame.Width = img.Width
		frame.Height = img.Height
	}
	return frame, nil
}
