package nn

import (
	"encoding/json"
	"os"
)

// Detection is an object that an upstream object detector has found in an image.
// The detector (DETR, YOLO, etc) is not our concern. We only consume its output.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}

// ImageLabels are the detections for a single image, or a single frame of a video
type ImageLabels struct {
	Frame   int         `json:"frame,omitempty"` // For video, this is the 1-based frame number
	Width   int         `json:"width,omitempty"`
	Height  int         `json:"height,omitempty"`
	Image   string      `json:"image,omitempty"` // Optional path to the image file, relative to the label file
	Objects []Detection `json:"objects"`
}

// VideoLabels contains labels for each frame of a video.
// Every decoded frame is listed, in order, even if it has no objects.
type VideoLabels struct {
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	FrameDir string         `json:"frameDir,omitempty"` // Optional directory holding one JPEG per frame
	Frames   []*ImageLabels `json:"frames"`
}

// Load an ImageLabels JSON file
func LoadImageLabels(filename string) (*ImageLabels, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	labels := &ImageLabels{}
	if err := json.Unmarshal(b, labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// Load a VideoLabels JSON file
func LoadVideoLabels(filename string) (*VideoLabels, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	labels := &VideoLabels{}
	if err := json.Unmarshal(b, labels); err != nil {
		return nil, err
	}
	return labels, nil
}
