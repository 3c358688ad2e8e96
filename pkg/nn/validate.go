package nn

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

// ErrMalformedDetection is returned when a detection can't be fed to the assessment engine.
// Callers must validate at the boundary, because the engine assumes well formed input.
var ErrMalformedDetection = errors.New("malformed detection")

// ErrBadImageSize is returned for negative image dimensions
var ErrBadImageSize = errors.New("invalid image size")

// Validate returns nil if the detection has finite, non-inverted coordinates and a confidence in [0,1].
func (d *Detection) Validate() error {
	if math32.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v is outside [0,1]", ErrMalformedDetection, d.Confidence)
	}
	for _, v := range []float64{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in box %v", ErrMalformedDetection, d.Box)
		}
	}
	if d.Box.X1 > d.Box.X2 || d.Box.Y1 > d.Box.Y2 {
		return fmt.Errorf("%w: inverted box (%v,%v)-(%v,%v)", ErrMalformedDetection, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
	}
	return nil
}

// ValidateDetections checks an entire list, and reports the index of the first bad detection.
func ValidateDetections(detections []Detection) error {
	for i := range detections {
		if err := detections[i].Validate(); err != nil {
			return fmt.Errorf("detection %v (%v): %w", i, detections[i].Class, err)
		}
	}
	return nil
}

// ValidateImageSize rejects negative dimensions. Zero is allowed, because the engine guards against it.
func ValidateImageSize(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: %v x %v", ErrBadImageSize, width, height)
	}
	return nil
}

// Validate checks the image size and every object
func (l *ImageLabels) Validate() error {
	if err := ValidateImageSize(l.Width, l.Height); err != nil {
		return err
	}
	return ValidateDetections(l.Objects)
}
